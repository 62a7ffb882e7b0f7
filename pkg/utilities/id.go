package utilities

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// NodeFromEnv reads the snowflake node id from SNOWFLAKE_NODE, defaulting to 1.
func NodeFromEnv() int64 {
	nodeID, err := strconv.ParseInt(os.Getenv("SNOWFLAKE_NODE"), 10, 64)
	if err != nil {
		return 1
	}
	return nodeID
}

// IDGenerator issues request ids. One generator must be shared per process so that
// snowflake sequence numbers never repeat within a millisecond.
type IDGenerator struct {
	node *snowflake.Node
}

// NewIDGenerator builds a generator for nodeID. If the node cannot be initialized
// (out of range) the generator falls back to KSUIDs.
func NewIDGenerator(nodeID int64) *IDGenerator {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return &IDGenerator{}
	}
	return &IDGenerator{node: node}
}

func (g *IDGenerator) NewRequestID() string {
	if g == nil || g.node == nil {
		return NewKSUID()
	}
	return g.node.Generate().String()
}
