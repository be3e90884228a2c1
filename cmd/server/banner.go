package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/ternarybob/banner"

	"fundboard/internal/config"
)

func printBanner(w io.Writer, cfg *config.Config, dbPath string) {
	lineColor := banner.ColorCyan
	textColor := banner.ColorBold + banner.ColorWhite
	hr := lineColor + strings.Repeat("═", 60) + banner.ColorReset

	fmt.Fprintf(w, "\n%s\n", hr)
	fmt.Fprintf(w, "%s  FUNDBOARD  fund dashboard & AI analysis%s\n", textColor, banner.ColorReset)
	fmt.Fprintf(w, "%s\n\n", hr)

	jwt := "configured"
	if cfg.Auth.JWTSecret == "" {
		jwt = "ephemeral"
	}
	kvLines := [][2]string{
		{"Version", version},
		{"Environment", cfg.Environment},
		{"Service URL", "http://" + cfg.Addr()},
		{"Database", dbPath},
		{"Data service", cfg.DataService.BaseURL},
		{"News provider", cfg.News.Provider},
		{"JWT secret", jwt},
	}
	for _, kv := range kvLines {
		fmt.Fprintf(w, "%s  %-*s %s%s\n", textColor, 16, kv[0], kv[1], banner.ColorReset)
	}
	fmt.Fprintf(w, "\n%s\n\n", hr)
}

func printShutdownBanner(w io.Writer) {
	hr := banner.ColorCyan + strings.Repeat("═", 42) + banner.ColorReset
	fmt.Fprintf(w, "\n%s\n%s  FUNDBOARD SHUTTING DOWN%s\n%s\n\n", hr, banner.ColorBold+banner.ColorWhite, banner.ColorReset, hr)
}
