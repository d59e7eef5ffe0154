package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-template-script/pkg/eval"
)

// CacheOutput describes the persisted expression cache.
type CacheOutput struct {
	Path    string `json:"path"`
	Exists  bool   `json:"exists"`
	Size    int64  `json:"size"`
	Entries int    `json:"entries"`
}

// cacheCmd represents the cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the persisted expression cache",
	Long: `Compiled expressions are kept in an LRU cache. When cache_file is set the
cache is loaded before and saved after every command.`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the entries of the persisted expression cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := current
		path, err := cacheFile()
		if err != nil {
			return err
		}
		info := CacheOutput{Path: path}
		if st, err := os.Stat(path); err == nil {
			info.Exists = true
			info.Size = st.Size()
			c := eval.NewExprCache(a.cfg.CacheSize)
			if err := c.LoadFile(path); err != nil {
				return fmt.Errorf("reading cache: %w", err)
			}
			info.Entries = c.Len()
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat cache: %w", err)
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return printJSON(cmd.OutOrStdout(), info)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Cache file: %s\n", info.Path)
		if !info.Exists {
			fmt.Fprintln(out, "Not written yet")
			return nil
		}
		fmt.Fprintf(out, "Size:       %s\n", humanize.Bytes(uint64(info.Size)))
		fmt.Fprintf(out, "Entries:    %d of %d\n", info.Entries, a.cfg.CacheSize)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the persisted expression cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := cacheFile()
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing cache: %w", err)
		}
		current.logger.Info("expression cache cleared", "path", path)
		return nil
	},
}

func cacheFile() (string, error) {
	if current.cfg.CacheFile == "" {
		return "", errors.New("cache_file is not configured")
	}
	return current.cfg.CacheFile, nil
}

func init() {
	cacheStatsCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
