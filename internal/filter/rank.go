package filter

// Tier assigns a fixed weight to a category of tags. Tiers are loaded once at
// process start and never mutated afterwards.
type Tier struct {
	Weight int      `yaml:"weight"`
	Tags   []string `yaml:"tags"`
}

// DefaultTiers is the built-in priority ladder, used when no tier file is
// configured: urgency markers rank above functional areas, which rank above
// pending-status, time-based and planning markers.
func DefaultTiers() []Tier {
	return []Tier{
		{Weight: 100, Tags: []string{"p1", "urgent", "critical", "asap", "now"}},
		{Weight: 50, Tags: []string{"work", "home", "errands", "health", "family", "dev"}},
		{Weight: 10, Tags: []string{"pending", "waiting", "blocked", "followup"}},
		{Weight: 5, Tags: []string{"today", "tonight", "weekend", "morning"}},
		{Weight: 2, Tags: []string{"plan", "goal", "idea", "someday", "maybe"}},
	}
}

// weights flattens a tier table into a tag -> weight lookup. An earlier tier
// wins when a tag appears in more than one.
func weights(tiers []Tier) map[string]int {
	m := make(map[string]int)
	for _, tier := range tiers {
		for _, tag := range tier.Tags {
			if _, ok := m[tag]; !ok {
				m[tag] = tier.Weight
			}
		}
	}
	return m
}

// rank returns the task's priority: the maximum weight among its tags.
// Total over all inputs; tasks with no tags, or only unranked tags, get 0.
func (e *Evaluator) rank(tags []string) int {
	best := 0
	for _, tag := range tags {
		if w, ok := e.weights[tag]; ok && w > best {
			best = w
		}
	}
	return best
}
