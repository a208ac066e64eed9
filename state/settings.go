package state

import "time"

const (
	DefaultCounterInterval = 500 * time.Millisecond
	DefaultAnswerTimeout   = 30 * time.Second
)

// Settings are the user-facing game settings. The supervisor republishes
// them merged with the engine's UIConfig.
type Settings struct {
	Engine           Selector      `yaml:"engine"`
	FontSize         int           `yaml:"font_size"`
	TextColor        Color         `yaml:"text_color"`
	BackColor        Color         `yaml:"back_color"`
	LinkColor        Color         `yaml:"link_color"`
	AnswerTimeout    time.Duration `yaml:"answer_timeout"`
	CounterInterval  time.Duration `yaml:"counter_interval"`
	UseHTML          bool          `yaml:"use_html"`
	UseGameFont      bool          `yaml:"use_game_font"`
	UseGameTextColor bool          `yaml:"use_game_text_color"`
	UseGameBackColor bool          `yaml:"use_game_back_color"`
	UseGameLinkColor bool          `yaml:"use_game_link_color"`
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Engine:           SelectorByte,
		FontSize:         16,
		TextColor:        0xFF000000,
		BackColor:        0xFFE0E0E0,
		LinkColor:        0xFF0000FF,
		AnswerTimeout:    DefaultAnswerTimeout,
		CounterInterval:  DefaultCounterInterval,
		UseGameFont:      true,
		UseGameTextColor: true,
		UseGameBackColor: true,
		UseGameLinkColor: true,
	}
}

// Merge overlays engine styling onto user settings. HTML mode always follows
// the engine. Font size and colours follow the engine only when the matching
// "use game" toggle is on and the engine value is non-zero.
func Merge(user Settings, cfg UIConfig) Settings {
	merged := user
	merged.UseHTML = cfg.UseHTML
	merged.FontSize = pick(user.UseGameFont, cfg.FontSize, user.FontSize)
	merged.TextColor = pick(user.UseGameTextColor, cfg.FontColor, user.TextColor)
	merged.BackColor = pick(user.UseGameBackColor, cfg.BackColor, user.BackColor)
	merged.LinkColor = pick(user.UseGameLinkColor, cfg.LinkColor, user.LinkColor)
	return merged
}

func pick[T int | Color](useGame bool, game, user T) T {
	if useGame && game != 0 {
		return game
	}
	return user
}
