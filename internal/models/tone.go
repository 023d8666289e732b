package models

import "fmt"

// Tone is a rewrite style a reader can pick for messages from a given sender.
type Tone string

const (
	ToneWarmer        Tone = "warmer"
	ToneProfanityFree Tone = "profanity-free"
	ToneFormal        Tone = "formal"
	ToneSimplified    Tone = "simplified"
	ToneConcise       Tone = "concise"
)

// Tones lists every supported tone in display order.
var Tones = []Tone{ToneWarmer, ToneProfanityFree, ToneFormal, ToneSimplified, ToneConcise}

// Valid reports whether t is one of the supported tones.
func (t Tone) Valid() bool {
	for _, known := range Tones {
		if t == known {
			return true
		}
	}
	return false
}

// ParseTone converts a label into a Tone. The empty string means no preference.
func ParseTone(s string) (Tone, error) {
	if s == "" {
		return "", nil
	}
	t := Tone(s)
	if !t.Valid() {
		return "", fmt.Errorf("unsupported tone %q", s)
	}
	return t, nil
}
