package synthesis

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Topic maps trigger words to a pre-vetted statement. A question matches
// when it contains any trigger, ignoring case.
type Topic struct {
	Triggers []string `json:"triggers"`
	Answer   string   `json:"answer"`
}

const tdapStatement = "A Tdap booster is generally recommended once in adolescence (around 11–12 years), " +
	"and every 10 years thereafter for adults. Pregnant women are advised to receive one " +
	"dose during each pregnancy, ideally between 27–36 weeks gestation."

func DefaultTopics() []Topic {
	return []Topic{
		{Triggers: []string{"tdap", "booster"}, Answer: tdapStatement},
	}
}

// MatchTopic returns the first topic with a trigger contained in question.
func MatchTopic(topics []Topic, question string) (Topic, bool) {
	q := strings.ToLower(question)
	for _, t := range topics {
		for _, trig := range t.Triggers {
			trig = strings.ToLower(strings.TrimSpace(trig))
			if trig != "" && strings.Contains(q, trig) {
				return t, true
			}
		}
	}
	return Topic{}, false
}

// LoadTopics reads a JSON array of topics from path. An empty path yields
// the default table.
func LoadTopics(path string) ([]Topic, error) {
	if path == "" {
		return DefaultTopics(), nil
	}
	b, err := os.ReadFile(path) // #nosec G304 -- path is from application config
	if err != nil {
		return nil, fmt.Errorf("failed to read topics file: %w", err)
	}
	var topics []Topic
	if err := json.Unmarshal(b, &topics); err != nil {
		return nil, fmt.Errorf("failed to parse topics file: %w", err)
	}
	for i, t := range topics {
		if len(t.Triggers) == 0 || strings.TrimSpace(t.Answer) == "" {
			return nil, fmt.Errorf("topic %d needs at least one trigger and an answer", i)
		}
	}
	return topics, nil
}
