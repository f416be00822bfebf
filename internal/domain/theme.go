package domain

// Electric Violet palette.
const (
	ColorPrimary          = "#D0BCFF"
	ColorOnPrimary        = "#381E72"
	ColorBackground       = "#141218"
	ColorSurface          = "#2B2930"
	ColorOnSurface        = "#E6E1E5"
	ColorSurfaceVariant   = "#49454F"
	ColorOnSurfaceVariant = "#CAC4D0"
	ColorError            = "#F2B8B5"
	ColorOnError          = "#601410"
)

type ThemeMode string

const (
	ThemeDark  ThemeMode = "dark"
	ThemeLight ThemeMode = "light"
)

// ColorScheme uses the Material 3 role names.
type ColorScheme struct {
	Mode             ThemeMode `json:"mode"`
	Primary          string    `json:"primary"`
	OnPrimary        string    `json:"on_primary"`
	Background       string    `json:"background"`
	OnBackground     string    `json:"on_background"`
	Surface          string    `json:"surface"`
	OnSurface        string    `json:"on_surface"`
	SurfaceVariant   string    `json:"surface_variant,omitempty"`
	OnSurfaceVariant string    `json:"on_surface_variant,omitempty"`
	Error            string    `json:"error,omitempty"`
	OnError          string    `json:"on_error,omitempty"`
}

var DarkColorScheme = ColorScheme{
	Mode:             ThemeDark,
	Primary:          ColorPrimary,
	OnPrimary:        ColorOnPrimary,
	Background:       ColorBackground,
	OnBackground:     ColorOnSurface,
	Surface:          ColorSurface,
	OnSurface:        ColorOnSurface,
	SurfaceVariant:   ColorSurfaceVariant,
	OnSurfaceVariant: ColorOnSurfaceVariant,
	Error:            ColorError,
	OnError:          ColorOnError,
}

// LightColorScheme is kept as a fallback; the app ships dark only.
var LightColorScheme = ColorScheme{
	Mode:         ThemeLight,
	Primary:      "#6750A4",
	OnPrimary:    "#FFFFFF",
	Background:   "#FFFBFE",
	OnBackground: "#1C1B1F",
	Surface:      "#FFFBFE",
	OnSurface:    "#1C1B1F",
}

// SchemeFor returns the scheme for mode. Unknown modes get the dark scheme.
func SchemeFor(mode ThemeMode) ColorScheme {
	if mode == ThemeLight {
		return LightColorScheme
	}
	return DarkColorScheme
}
