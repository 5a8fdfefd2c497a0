/*
Package blocksync keeps the node's copy of side block data in step with the
block registry.

Every side block is anchored on the chain by a merkle root and a content
pointer to the block snapshot. The snapshot is a JSON document whose data
field holds three parallel lists: tx hashes, payload hashes and raw tx
data. The tx hashes are the merkle leaves.

The Service syncs a block by reading its registry entry, fetching the
snapshot from the content store, rebuilding the tree from the leaves and
checking the root against the registry. A verified block is stored, its
snapshot pinned, its transactions dropped from the pending pool and the
round syncer told the block is synced.

Requests come from round sync events: a BlockEvent for block n syncs n-1,
the newest committed block, and a BlockDataEvent syncs the block it names.
Blocks that fail are kept as missing and retried with the next request.

The Prover answers inclusion questions against synced or remote blocks.
*/
package blocksync
