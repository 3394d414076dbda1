package mood

import "strings"

// Emoji lookups run before the word table
var emojiTable = map[string]Category{
	"😊": Happy, "😀": Happy, "😃": Happy, "😄": Happy, "😁": Happy, "🙂": Happy, "😆": Happy,
	"😢": Sad, "😭": Sad, "☹": Sad, "🙁": Sad, "😞": Sad, "😔": Sad,
	"😠": Angry, "😡": Angry, "🤬": Angry, "😤": Angry,
	"😴": Tired, "🥱": Tired, "😪": Tired,
	"🤒": Sick, "🤢": Sick, "🤮": Sick, "🤧": Sick, "😷": Sick,
	"😐": Neutral, "😶": Neutral, "😑": Neutral,
	"😌": Calm, "😇": Calm, "🧘": Calm,
	"🤩": Excited, "🥳": Excited, "😲": Excited, "😮": Excited,
	"😰": Anxious, "😟": Anxious, "😨": Anxious, "😬": Anxious,
	"😕": Confused, "🤔": Confused, "😵": Confused,
}

// Emoji may arrive with a trailing variation selector or zero-width joiner
var presentation = strings.NewReplacer("\uFE0F", "", "\uFE0E", "", "\u200D", "")

var wordTable = map[string]Category{
	"happy": Happy, "joy": Happy, "joyful": Happy, "glad": Happy, "cheerful": Happy,
	"content": Happy, "good": Happy, "great": Happy, "smile": Happy, "smiling": Happy,

	"sad": Sad, "down": Sad, "unhappy": Sad, "sorrow": Sad, "sadness": Sad,
	"depressed": Sad, "blue": Sad, "upset": Sad, "melancholy": Sad, "crying": Sad,

	"angry": Angry, "mad": Angry, "anger": Angry, "furious": Angry, "annoyed": Angry,
	"irritated": Angry, "frustrated": Angry,

	"tired": Tired, "sleepy": Tired, "exhausted": Tired, "fatigued": Tired,
	"drowsy": Tired, "sleeping": Tired,

	"sick": Sick, "ill": Sick, "unwell": Sick, "nauseous": Sick, "poorly": Sick,

	"neutral": Neutral, "ok": Neutral, "okay": Neutral, "fine": Neutral,
	"meh": Neutral, "normal": Neutral,

	"calm": Calm, "relaxed": Calm, "peaceful": Calm, "serene": Calm,

	"excited": Excited, "thrilled": Excited, "energetic": Excited,
	"surprise": Excited, "surprised": Excited,

	"anxious": Anxious, "nervous": Anxious, "worried": Anxious, "stressed": Anxious,
	"fear": Anxious, "fearful": Anxious, "scared": Anxious,

	"confused": Confused, "puzzled": Confused, "unsure": Confused, "lost": Confused,
}

// Normalize maps a raw label to a canonical mood. Unknown labels yield neutral.
func Normalize(raw string) CanonicalMood {
	if m, ok := Lookup(raw); ok {
		return m
	}
	return Default()
}

// Lookup is the strict form of Normalize: ok is false when the label is not
// a known emoji, category name or synonym.
func Lookup(raw string) (CanonicalMood, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return CanonicalMood{}, false
	}

	bare := presentation.Replace(s)
	if c, ok := emojiTable[bare]; ok {
		return Of(c), true
	}

	word := strings.ToLower(bare)
	if c, ok := wordTable[word]; ok {
		return Of(c), true
	}
	return CanonicalMood{}, false
}
