package roundsync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/creachadair/taskgroup"

	"github.com/optract/optract/types"
)

// renewPrevious starts retrieval of the artifacts of the round before
// round. It must be called with mtx held; the result is applied only if
// round is still current when retrieval ends.
func (s *Syncer) renewPrevious(ctx context.Context, round uint64, drawn bool) {
	if round < 2 {
		return
	}
	s.artifacts.Add(1)
	go func() {
		defer s.artifacts.Done()
		prev, err := s.fetchPrevious(ctx, round-1, drawn)
		if err != nil {
			s.metrics.ArtifactFailures.Add(1)
			s.logger.Error("failed to retrieve previous round artifacts",
				"opround", round-1, "err", err)
		}

		s.mtx.Lock()
		defer s.mtx.Unlock()
		if s.state.Opround != int64(round) {
			s.logger.Info("discarding artifacts of a stale round", "opround", round-1)
			return
		}
		s.state.Previous = prev
	}()
}

// fetchPrevious reads the close results of round and retrieves and pins
// every artifact they point to. On error it returns what it could gather;
// fields it could not fill keep their zero values.
func (s *Syncer) fetchPrevious(ctx context.Context, round uint64, drawn bool) (PreviousRound, error) {
	var prev PreviousRound

	res, err := s.chain.RoundResults(ctx, round)
	if err != nil {
		return prev, fmt.Errorf("querying round %d results: %w", round, err)
	}
	if !drawn && types.IsZeroHash(res.SuccessRateTable) && types.IsZeroHash(res.FinalistList) {
		return prev, nil
	}
	prev.MinSuccessRate = res.MinSuccessRate
	prev.SuccessRateTable = res.SuccessRateTable
	prev.FinalistList = res.FinalistList

	var (
		rates     map[string]json.RawMessage
		finalists []json.RawMessage
	)
	g := taskgroup.New(nil)
	if !types.IsZeroHash(res.SuccessRateTable) {
		g.Go(func() error { return s.retrieve(ctx, res.SuccessRateTable, &rates) })
		g.Go(func() error { return s.content.Pin(ctx, res.SuccessRateTable) })
	}
	if !types.IsZeroHash(res.FinalistList) {
		g.Go(func() error { return s.retrieve(ctx, res.FinalistList, &finalists) })
		g.Go(func() error { return s.content.Pin(ctx, res.FinalistList) })
	}
	err = g.Wait()

	prev.SuccessRates = rates
	prev.Finalists = finalists
	return prev, err
}

func (s *Syncer) retrieve(ctx context.Context, ptr types.Hash, v interface{}) error {
	bz, err := s.content.Fetch(ctx, ptr)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(bz, v); err != nil {
		return fmt.Errorf("decoding artifact %x: %w", ptr, err)
	}
	return nil
}

// WaitArtifacts blocks until pending artifact retrievals end.
func (s *Syncer) WaitArtifacts() { s.artifacts.Wait() }
