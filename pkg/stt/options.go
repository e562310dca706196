package stt

import "time"

type Options struct {
	Language        string        // e.g. "auto", "en", "ru"
	TranslateToEn   bool          // if true, translate non-EN -> EN
	Threads         int           // <=0 => NumCPU()
	InitialPrompt   string        // optional prefix prompt
	MaxTokens       uint          // 0 = no limit
	BeamSize        int           // 0 = greedy
	SplitOnWord     bool          // split on word boundaries
	Temperature     float32       // 0 = default
	TemperatureStep float32       // 0 = default
	Duration        time.Duration // max duration (optional)
}

type Segment struct {
	Text     string
	StartSec float64
	EndSec   float64
}

type Transcript struct {
	Text     string
	Segments []Segment
	Language string // detected or forced
}
