package util

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hfxdb/hfx/lib/fieldstore"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupStoreFlags adds the common store tuning flags to a command
func SetupStoreFlags(cmd *cobra.Command) {
	key := "shards"
	cmd.PersistentFlags().Int(key, 0, WrapString("Number of store shards (0 = one per CPU core)"))

	key = "sweep-interval"
	cmd.PersistentFlags().Int(key, 100, WrapString("Milliseconds between expiry sweeps per shard"))

	key = "sweep-batch"
	cmd.PersistentFlags().Int(key, 128, WrapString("Maximum expired fields reclaimed per shard and sweep"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("hfx")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetStoreOptions reads the store configuration from viper
func GetStoreOptions() *fieldstore.Options {
	opts := fieldstore.DefaultOptions()
	if n := viper.GetInt("shards"); n > 0 {
		opts.NumShards = n
	}
	if ms := viper.GetInt("sweep-interval"); ms > 0 {
		opts.SweepInterval = time.Duration(ms) * time.Millisecond
	}
	if b := viper.GetInt("sweep-batch"); b > 0 {
		opts.SweepBatch = b
	}
	return opts
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
