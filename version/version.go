package version

var (
	// GitCommit is the current HEAD set using ldflags.
	GitCommit string

	// Version is the built softwares version.
	Version = OptractSemVer
)

func init() {
	if GitCommit != "" {
		Version += "-" + GitCommit
	}
}

const (
	// OptractSemVer is the current version of the optract node.
	// It's the Semantic Version of the software.
	OptractSemVer = "0.4.0"

	// GossipProtocol versions the gossip envelope and record schemas.
	GossipProtocol uint64 = 1

	// StoreVersion versions the layout of the node store.
	StoreVersion uint64 = 1
)
