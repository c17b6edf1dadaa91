package app

import (
	"fmt"
	"io"

	"github.com/phillarmonic/figlet/figletlib"
)

// Domain: Version Display
// This file contains logic for displaying version information

// ShowVersion displays version information with ASCII art
func ShowVersion(w io.Writer, version, commit, date string) error {
	loader := figletlib.NewEmbededLoader()
	font, err := loader.GetFontByName("standard")
	if err != nil {
		return err
	}

	startColor, _ := figletlib.ParseColor("#FF9500")
	endColor, _ := figletlib.ParseColor("#FF2D55")
	gradientConfig := figletlib.ColorConfig{
		Mode:       figletlib.ColorModeGradient,
		StartColor: startColor,
		EndColor:   endColor,
	}

	_, _ = fmt.Fprintln(w)
	figletlib.PrintColoredMsg("pf", font, 80, font.Settings(), "left", gradientConfig)

	_, _ = fmt.Fprintln(w, "pf task runner")
	_, _ = fmt.Fprintln(w, "Local shell, SSH fan-out and 40+ languages from one Pfyfile.")
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "Version %s\n", version)
	if commit != "unknown" {
		_, _ = fmt.Fprintf(w, "commit: %s\n", commit)
	}
	if date != "unknown" {
		_, _ = fmt.Fprintf(w, "built: %s\n", date)
	}
	return nil
}
