package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/msto63/krishisaathi/internal/language"
	"github.com/msto63/krishisaathi/internal/voice"
	"github.com/msto63/krishisaathi/pkg/core/logging"
)

var voicesCmd = &cobra.Command{
	Use:   "voices [language]",
	Short: "List synthesis voices and the voice chosen per language",
	Long: `Lists the voices offered by the configured synthesis engine. With a
language id only the selected voice and its fallback chain are shown.

Examples:
  krishi voices
  krishi voices tamil`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVoices,
}

func init() {
	rootCmd.AddCommand(voicesCmd)
}

func runVoices(cmd *cobra.Command, args []string) error {
	logger := logging.New("voices")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	synth := newSynthesis(appConfig, false, logger)
	if c, ok := synth.(interface{ Close() error }); ok {
		defer c.Close()
	}
	voices, err := synth.Voices(ctx)
	if err != nil {
		return err
	}

	catalog := loadCatalog(ctx, appConfig, nil, logger)
	resolver := voice.NewResolver(catalog)

	if len(args) == 1 {
		lang, err := catalog.Resolve(args[0])
		if err != nil {
			return err
		}
		return printSelection(resolver, lang, voices)
	}

	fmt.Printf("%d voices (%s)\n", len(voices), appConfig.Synthesis.Engine)
	for _, v := range voices {
		fmt.Printf("  %-8s %s\n", v.LocaleTag, v.VoiceID)
	}
	fmt.Println()
	for _, lang := range catalog.List() {
		if err := printSelection(resolver, lang, voices); err != nil {
			return err
		}
	}
	return nil
}

func printSelection(resolver *voice.Resolver, lang language.Language, voices []voice.Candidate) error {
	c, err := resolver.SelectCandidate(lang.ID, voices)
	switch {
	case errors.Is(err, voice.ErrNoVoiceAvailable):
		fmt.Printf("%-10s -> (no voice, text only)\n", lang.ID)
		return nil
	case err != nil:
		return err
	}
	fmt.Printf("%-10s -> %s [%s]  tried %v\n", lang.ID, c.VoiceID, c.LocaleTag, voice.FallbackTags(lang))
	return nil
}
