package main

import (
	"fmt"

	"github.com/dgnsrekt/stratus-audio/pkg/audio"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Show the audio cache contents",
	Long:  paragraph(fmt.Sprintf("\nShow the size and location of the %s holding downloaded clips.", keyword("audio cache"))),
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		store, err := audio.NewStore(pipelineConfig().CacheDir)
		if err != nil {
			return err
		}
		count, total := store.Stats()
		fmt.Printf("%d clips, %s\n", count, humanize.Bytes(uint64(total))) //nolint:gosec
		fmt.Println(store.Dir())
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all cached clips",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		store, err := audio.NewStore(pipelineConfig().CacheDir)
		if err != nil {
			return err
		}
		deleted, freed := store.Clear()
		fmt.Printf("Deleted %d clips, freed %s\n", deleted, humanize.Bytes(uint64(freed))) //nolint:gosec
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
}
