package domain

import (
	"strings"
	"time"
)

// DefaultCompanions is the built-in catalog served to unauthenticated
// visitors. Entries are owned by the "system" author and are never
// persisted.
var DefaultCompanions = []Companion{
	{
		ID:          "default-1",
		Name:        "AlgebraBot Pro",
		Topic:       "Algebra Fundamentals",
		Subject:     "maths",
		Duration:    8,
		Description: "Master the basics of algebra with interactive problem-solving sessions.",
		Personality: "Patient and encouraging, breaks down complex problems into simple steps.",
		Author:      "system",
	},
	{
		ID:          "default-2",
		Name:        "Cell Explorer AI",
		Topic:       "Cell Biology",
		Subject:     "science",
		Duration:    12,
		Description: "Explore the fascinating world of cells and their functions.",
		Personality: "Enthusiastic and detail-oriented, uses real-world examples to explain concepts.",
		Author:      "system",
	},
	{
		ID:          "default-3",
		Name:        "History Master",
		Topic:       "World War II",
		Subject:     "history",
		Duration:    15,
		Description: "Understand the causes, events, and consequences of World War II.",
		Personality: "Engaging storyteller who brings historical events to life.",
		Author:      "system",
	},
	{
		ID:          "default-4",
		Name:        "WordCraft Mentor",
		Topic:       "Creative Writing",
		Subject:     "language",
		Duration:    10,
		Description: "Develop your writing skills through creative exercises and feedback.",
		Personality: "Inspiring and supportive, encourages creative expression.",
		Author:      "system",
	},
	{
		ID:          "default-5",
		Name:        "CodeGenius AI",
		Topic:       "Programming Basics",
		Subject:     "coding",
		Duration:    20,
		Description: "Learn the fundamentals of programming with hands-on practice.",
		Personality: "Logical and systematic, builds understanding step by step.",
		Author:      "system",
	},
	{
		ID:          "default-6",
		Name:        "EconoWiz",
		Topic:       "Microeconomics",
		Subject:     "economics",
		Duration:    14,
		Description: "Understand how individuals and businesses make economic decisions.",
		Personality: "Analytical and practical, connects theory to real-world applications.",
		Author:      "system",
	},
	{
		ID:          "default-7",
		Name:        "Physics Quantum",
		Topic:       "Physics Laws",
		Subject:     "science",
		Duration:    18,
		Description: "Explore the fundamental laws that govern our universe.",
		Personality: "Curious and experimental, loves demonstrating concepts through examples.",
		Author:      "system",
	},
	{
		ID:          "default-8",
		Name:        "LinguaChat Bot",
		Topic:       "Spanish Conversation",
		Subject:     "language",
		Duration:    6,
		Description: "Practice Spanish conversation skills in a comfortable environment.",
		Personality: "Friendly and patient, creates a supportive learning atmosphere.",
		Author:      "system",
	},
	{
		ID:          "default-9",
		Name:        "Calculus Wizard",
		Topic:       "Calculus Concepts",
		Subject:     "maths",
		Duration:    25,
		Description: "Master calculus concepts with guided practice and clear explanations.",
		Personality: "Methodical and encouraging, helps students overcome math anxiety.",
		Author:      "system",
	},
}

// popularDefaultIndexes picks the catalog entries shown on the landing
// page for anonymous visitors.
var popularDefaultIndexes = []int{8, 4, 6}

// PopularDefaultCompanions returns up to limit featured catalog entries.
func PopularDefaultCompanions(limit int) []Companion {
	now := time.Now()
	out := make([]Companion, 0, len(popularDefaultIndexes))
	for _, i := range popularDefaultIndexes {
		c := DefaultCompanions[i]
		c.CreatedAt = now
		out = append(out, c)
	}
	if limit >= 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// FilterDefaultCompanions applies the catalog's subject/topic matching and
// pagination. Topic terms also match against the companion name.
func FilterDefaultCompanions(f CompanionFilter) []Companion {
	now := time.Now()
	subject := strings.ToLower(f.Subject)
	topic := strings.ToLower(f.Topic)

	var filtered []Companion
	for _, c := range DefaultCompanions {
		subjectMatch := subject == "" || strings.Contains(strings.ToLower(c.Subject), subject)
		topicMatch := topic == "" ||
			strings.Contains(strings.ToLower(c.Topic), topic) ||
			strings.Contains(strings.ToLower(c.Name), topic)
		if subjectMatch && topicMatch {
			c.CreatedAt = now
			filtered = append(filtered, c)
		}
	}

	start := f.Offset()
	if start >= len(filtered) {
		return []Companion{}
	}
	end := start + f.PageSize()
	if end > len(filtered) {
		end = len(filtered)
	}
	return filtered[start:end]
}
