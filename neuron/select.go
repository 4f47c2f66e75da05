package neuron

import (
	"sort"

	"daoctl/rpc"
)

// SortNeurons orders neurons by dissolve delay ascending, breaking ties by
// stake descending. The ordering is what list output and default-neuron
// selection both key off.
func SortNeurons(neurons []rpc.Neuron) {
	sort.SliceStable(neurons, func(i, j int) bool {
		di, dj := dissolveDelay(&neurons[i]), dissolveDelay(&neurons[j])
		if di != dj {
			return di < dj
		}
		return neurons[i].Stake > neurons[j].Stake
	})
}

func dissolveDelay(n *rpc.Neuron) uint64 {
	if n.DissolveDelaySecs != nil {
		return *n.DissolveDelaySecs
	}
	return 0
}

// MainNeuron picks the neuron used for voting and proposal submission: the
// non-dissolving neuron with the longest dissolve delay. Returns nil when
// the controller has no non-dissolving neurons.
func MainNeuron(neurons []rpc.Neuron) *rpc.Neuron {
	var best *rpc.Neuron
	for i := range neurons {
		n := &neurons[i]
		if n.Dissolving() {
			continue
		}
		if best == nil || dissolveDelay(n) > dissolveDelay(best) {
			best = n
		}
	}
	return best
}

// DisburseTarget picks the default neuron for disbursal: the one with the
// shortest dissolve delay, which after sorting is the first. Returns nil for
// an empty list.
func DisburseTarget(neurons []rpc.Neuron) *rpc.Neuron {
	if len(neurons) == 0 {
		return nil
	}
	sorted := make([]rpc.Neuron, len(neurons))
	copy(sorted, neurons)
	SortNeurons(sorted)
	return &sorted[0]
}
