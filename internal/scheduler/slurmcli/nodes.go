package slurmcli

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gravitational/trace"

	"github.com/eth-cscs/firecrest-v2/internal/model"
	"github.com/eth-cscs/firecrest-v2/internal/sshpool"
)

type sinfoCommand struct{}

func (c *sinfoCommand) Render() string {
	return "sinfo -a -N --json"
}

func (c *sinfoCommand) Parse(stdout, stderr []byte, exitStatus int) (any, error) {
	if exitStatus != 0 {
		return nil, classifyCLIError(string(stderr), exitStatus)
	}
	var raw struct {
		Sinfo []struct {
			Cpus struct {
				Total int64 `json:"total"`
			} `json:"cpus"`
			Memory struct {
				Free struct {
					Minimum struct {
						Number int64 `json:"number"`
					} `json:"minimum"`
				} `json:"free"`
			} `json:"memory"`
			Nodes struct {
				Nodes []string `json:"nodes"`
			} `json:"nodes"`
			Node struct {
				State []string `json:"state"`
			} `json:"node"`
			Partition struct {
				Name string `json:"name"`
			} `json:"partition"`
		} `json:"sinfo"`
	}
	if err := json.Unmarshal(stdout, &raw); err != nil {
		return nil, trace.Wrap(err, "decoding sinfo output")
	}
	nodes := make([]model.Node, 0, len(raw.Sinfo))
	for _, n := range raw.Sinfo {
		name := ""
		if len(n.Nodes.Nodes) > 0 {
			name = n.Nodes.Nodes[0]
		}
		state := "UNKNOWN"
		if len(n.Node.State) > 0 {
			state = strings.Join(n.Node.State, "+")
		}
		var partitions []string
		if n.Partition.Name != "" {
			partitions = strings.Split(n.Partition.Name, ",")
		}
		nodes = append(nodes, model.Node{
			Name:       name,
			State:      state,
			Partitions: partitions,
			CPUs:       int(n.Cpus.Total),
			MemoryMB:   n.Memory.Free.Minimum.Number,
		})
	}
	return nodes, nil
}

// Nodes lists compute nodes via `sinfo -a -N --json`.
func (c *Client) Nodes(ctx context.Context) ([]model.Node, error) {
	var result any
	err := c.withClient(ctx, func(client *sshpool.Client) error {
		res, err := client.Execute(ctx, &sinfoCommand{}, nil)
		result = res
		return err
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return result.([]model.Node), nil
}

type scontrolPartitionsCommand struct{}

func (c *scontrolPartitionsCommand) Render() string {
	return "scontrol -a show -o partitions --json"
}

func (c *scontrolPartitionsCommand) Parse(stdout, stderr []byte, exitStatus int) (any, error) {
	if exitStatus != 0 {
		return nil, classifyCLIError(string(stderr), exitStatus)
	}
	var raw struct {
		Partitions []struct {
			Name      string `json:"name"`
			Partition struct {
				State []string `json:"state"`
			} `json:"partition"`
			Nodes struct {
				Total      int64  `json:"total"`
				Configured string `json:"configured"`
			} `json:"nodes"`
		} `json:"partitions"`
	}
	if err := json.Unmarshal(stdout, &raw); err != nil {
		return nil, trace.Wrap(err, "decoding scontrol show partitions output")
	}
	out := make([]model.Partition, 0, len(raw.Partitions))
	for _, p := range raw.Partitions {
		state := "UNKNOWN"
		if len(p.Partition.State) > 0 {
			state = strings.Join(p.Partition.State, "+")
		}
		out = append(out, model.Partition{Name: p.Name, State: state, Nodes: p.Nodes.Configured})
	}
	return out, nil
}

// Partitions lists scheduler partitions via `scontrol show partitions`.
func (c *Client) Partitions(ctx context.Context) ([]model.Partition, error) {
	var result any
	err := c.withClient(ctx, func(client *sshpool.Client) error {
		res, err := client.Execute(ctx, &scontrolPartitionsCommand{}, nil)
		result = res
		return err
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return result.([]model.Partition), nil
}

type scontrolReservationsCommand struct{}

func (c *scontrolReservationsCommand) Render() string {
	return "scontrol -a show -o reservations --json"
}

func (c *scontrolReservationsCommand) Parse(stdout, stderr []byte, exitStatus int) (any, error) {
	if exitStatus != 0 {
		return nil, classifyCLIError(string(stderr), exitStatus)
	}
	var raw struct {
		Reservations []struct {
			Name      string `json:"name"`
			NodeList  string `json:"node_list"`
			StartTime struct {
				Number int64 `json:"number"`
			} `json:"start_time"`
			EndTime struct {
				Number int64 `json:"number"`
			} `json:"end_time"`
			Users string `json:"users"`
		} `json:"reservations"`
	}
	if err := json.Unmarshal(stdout, &raw); err != nil {
		return nil, trace.Wrap(err, "decoding scontrol show reservations output")
	}
	out := make([]model.Reservation, 0, len(raw.Reservations))
	for _, r := range raw.Reservations {
		var users []string
		if r.Users != "" {
			users = strings.Split(r.Users, ",")
		}
		out = append(out, model.Reservation{
			Name:      r.Name,
			Nodes:     r.NodeList,
			StartTime: r.StartTime.Number,
			EndTime:   r.EndTime.Number,
			Users:     users,
		})
	}
	return out, nil
}

// Reservations lists scheduler reservations via `scontrol show reservations`.
func (c *Client) Reservations(ctx context.Context) ([]model.Reservation, error) {
	var result any
	err := c.withClient(ctx, func(client *sshpool.Client) error {
		res, err := client.Execute(ctx, &scontrolReservationsCommand{}, nil)
		result = res
		return err
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return result.([]model.Reservation), nil
}
