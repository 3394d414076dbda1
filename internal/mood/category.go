package mood

// Category is one of the closed set of canonical moods
type Category string

const (
	Happy    Category = "happy"
	Sad      Category = "sad"
	Angry    Category = "angry"
	Tired    Category = "tired"
	Sick     Category = "sick"
	Neutral  Category = "neutral"
	Calm     Category = "calm"
	Excited  Category = "excited"
	Anxious  Category = "anxious"
	Confused Category = "confused"
)

// Categories lists every canonical category in display order
var Categories = []Category{Happy, Sad, Angry, Tired, Sick, Neutral, Calm, Excited, Anxious, Confused}

// CanonicalMood is the normalized form of a raw mood label.
// Two moods are equal when their categories are equal.
type CanonicalMood struct {
	Category Category `json:"category"`
	Symbol   string   `json:"symbol"`
	Scale    float64  `json:"scale"`
}

// Same reports whether two moods share a category
func (m CanonicalMood) Same(other CanonicalMood) bool {
	return m.Category == other.Category
}

func (m CanonicalMood) String() string {
	return string(m.Category)
}

// Scale positions run from 0 (worst) to 1 (best)
var canonical = map[Category]CanonicalMood{
	Excited:  {Category: Excited, Symbol: "🤩", Scale: 1.0},
	Happy:    {Category: Happy, Symbol: "😊", Scale: 0.8},
	Calm:     {Category: Calm, Symbol: "😌", Scale: 0.65},
	Neutral:  {Category: Neutral, Symbol: "😐", Scale: 0.5},
	Confused: {Category: Confused, Symbol: "😕", Scale: 0.4},
	Tired:    {Category: Tired, Symbol: "😴", Scale: 0.3},
	Anxious:  {Category: Anxious, Symbol: "😰", Scale: 0.25},
	Sad:      {Category: Sad, Symbol: "😢", Scale: 0.2},
	Sick:     {Category: Sick, Symbol: "🤒", Scale: 0.15},
	Angry:    {Category: Angry, Symbol: "😠", Scale: 0.1},
}

// Of returns the canonical mood for a category.
// Unknown categories map to neutral.
func Of(c Category) CanonicalMood {
	if m, ok := canonical[c]; ok {
		return m
	}
	return canonical[Neutral]
}

// Default is the mood used for unrecognised labels and missing days
func Default() CanonicalMood {
	return canonical[Neutral]
}
