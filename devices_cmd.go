package main

import (
	"errors"
	"fmt"

	"github.com/dgnsrekt/stratus-audio/pkg/audio"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio output devices",
	Long:  paragraph(fmt.Sprintf("\nList the audio output devices playback can use, marking the %s with an asterisk.", keyword("default device"))),
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		engine := audio.NewEngine(pipelineConfig())
		if !engine.Profile().Available() {
			return errors.New("no audio player found in PATH")
		}
		for _, d := range engine.ListDevices() {
			marker := " "
			if d.Default {
				marker = "*"
			}
			fmt.Printf("%s %d: %s\n", marker, d.Index, d.Name)
		}
		return nil
	},
}
