package denoise

import (
	"fmt"

	"nica/internal/services"
)

// CommonAverage subtracts, sample by sample, the mean of all channels not in
// refused (1-based) from every channel.
func CommonAverage(channels [][]float64, refused []int) ([][]float64, error) {
	skip := make(map[int]bool, len(refused))
	for _, ch := range refused {
		skip[ch-1] = true
	}
	var use []int
	for ch := range channels {
		if !skip[ch] {
			use = append(use, ch)
		}
	}
	if len(use) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "common average", "reference",
			fmt.Sprintf("all %d channels are excluded", len(channels)), nil)
	}

	n := len(channels[0])
	mean := make([]float64, n)
	for _, ch := range use {
		for i, v := range channels[ch] {
			mean[i] += v
		}
	}
	for i := range mean {
		mean[i] /= float64(len(use))
	}
	out := make([][]float64, len(channels))
	for ch, data := range channels {
		row := make([]float64, len(data))
		for i, v := range data {
			row[i] = v - mean[i]
		}
		out[ch] = row
	}
	return out, nil
}

// Chain corrects every channel against each noise reference in turn; the
// output of one correction is the input of the next.
func Chain(r Remover, channels [][]float64, fs float64, noises ...[]float64) ([][]float64, error) {
	out := make([][]float64, len(channels))
	for ch, data := range channels {
		cur := data
		for _, noise := range noises {
			next, err := r.Remove(cur, noise, fs)
			if err != nil {
				return nil, fmt.Errorf("channel %d: %w", ch+1, err)
			}
			cur = next
		}
		out[ch] = append([]float64(nil), cur...)
	}
	return out, nil
}
