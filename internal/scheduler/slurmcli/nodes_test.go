package slurmcli

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eth-cscs/firecrest-v2/internal/model"
)

func TestSinfoCommandParse(t *testing.T) {
	cmd := &sinfoCommand{}
	out := `{"sinfo":[{"cpus":{"total":128},"memory":{"free":{"minimum":{"number":256000}}},"nodes":{"nodes":["nid001"]},"node":{"state":["IDLE"]},"partition":{"name":"normal,debug"}}]}`
	res, err := cmd.Parse([]byte(out), nil, 0)
	require.NoError(t, err)
	nodes := res.([]model.Node)
	require.Len(t, nodes, 1)
	require.Equal(t, "nid001", nodes[0].Name)
	require.Equal(t, "IDLE", nodes[0].State)
	require.Equal(t, []string{"normal", "debug"}, nodes[0].Partitions)
	require.Equal(t, 128, nodes[0].CPUs)
	require.Equal(t, int64(256000), nodes[0].MemoryMB)
}

func TestSinfoCommandParseMissingNodeList(t *testing.T) {
	cmd := &sinfoCommand{}
	out := `{"sinfo":[{"cpus":{"total":4},"node":{"state":[]},"partition":{"name":""}}]}`
	res, err := cmd.Parse([]byte(out), nil, 0)
	require.NoError(t, err)
	nodes := res.([]model.Node)
	require.Equal(t, "", nodes[0].Name)
	require.Equal(t, "UNKNOWN", nodes[0].State)
	require.Nil(t, nodes[0].Partitions)
}

func TestScontrolPartitionsCommandParse(t *testing.T) {
	cmd := &scontrolPartitionsCommand{}
	out := `{"partitions":[{"name":"normal","partition":{"state":["UP"]},"nodes":{"total":10,"configured":"nid[001-010]"}}]}`
	res, err := cmd.Parse([]byte(out), nil, 0)
	require.NoError(t, err)
	parts := res.([]model.Partition)
	require.Len(t, parts, 1)
	require.Equal(t, "normal", parts[0].Name)
	require.Equal(t, "UP", parts[0].State)
	require.Equal(t, "nid[001-010]", parts[0].Nodes)
}

func TestScontrolReservationsCommandParse(t *testing.T) {
	cmd := &scontrolReservationsCommand{}
	out := `{"reservations":[{"name":"maint","node_list":"nid[001-002]","start_time":{"number":1000},"end_time":{"number":2000},"users":"alice,bob"}]}`
	res, err := cmd.Parse([]byte(out), nil, 0)
	require.NoError(t, err)
	rs := res.([]model.Reservation)
	require.Len(t, rs, 1)
	require.Equal(t, "maint", rs[0].Name)
	require.Equal(t, []string{"alice", "bob"}, rs[0].Users)
	require.Equal(t, int64(1000), rs[0].StartTime)
}

func TestScontrolReservationsCommandParseNoUsers(t *testing.T) {
	cmd := &scontrolReservationsCommand{}
	out := `{"reservations":[{"name":"maint","node_list":"nid001","start_time":{"number":1},"end_time":{"number":2},"users":""}]}`
	res, err := cmd.Parse([]byte(out), nil, 0)
	require.NoError(t, err)
	rs := res.([]model.Reservation)
	require.Nil(t, rs[0].Users)
}
