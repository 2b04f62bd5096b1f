package tiling

import "fmt"

// Policy selects how tiles are sealed.
type Policy int

const (
	// PolicyParallel seals every tile concurrently, bounded by Parallelism.
	PolicyParallel Policy = iota
	// PolicyMemorySaving seals tiles one at a time on a single reused canvas.
	PolicyMemorySaving
	// PolicyBoost skips composition: each frame is its own tile.
	PolicyBoost
)

func (p Policy) String() string {
	switch p {
	case PolicyParallel:
		return "parallel"
	case PolicyMemorySaving:
		return "memory-saving"
	case PolicyBoost:
		return "boost"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// PolicyFor maps the two execution flags onto a Policy.
func PolicyFor(memorySaving, boost bool) (Policy, error) {
	switch {
	case memorySaving && boost:
		return PolicyParallel, fmt.Errorf("memory-saving and boost cannot be combined")
	case boost:
		return PolicyBoost, nil
	case memorySaving:
		return PolicyMemorySaving, nil
	default:
		return PolicyParallel, nil
	}
}
