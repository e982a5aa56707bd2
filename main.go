package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

var (
	maxLines    int
	files       []string
	refreshRate int
	include     string
	exclude     string
	timezone    string
	timeout     time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "pagelog [file or directory]",
	Short: "A bidirectional pager for very large, possibly compressed, possibly still-growing log files",
	Long: `pagelog is a TUI pager for scanning, seeking, filtering, and iterating
multi-gigabyte log files forward and backward without loading the whole
file, while the file may still be appended to by another process or
streamed from a pipe.

Usage:
  pagelog                        # Read from stdin
  pagelog file.log               # Read single file
  pagelog /path/to/logs          # Read all files in directory
  pagelog -e file1.log,file2.log # Read multiple files, merged`,
	Run: func(cmd *cobra.Command, args []string) {
		// Handle positional arguments
		if len(args) > 0 && len(files) == 0 {
			// First argument is treated as file or directory if -e flag not used
			fileInfo, err := os.Stat(args[0])
			if err == nil {
				if fileInfo.IsDir() {
					// If it's a directory, get all files in it
					files = getFilesInDirectory(args[0])
				} else {
					// Single file
					files = []string{args[0]}
				}
			} else {
				// If file doesn't exist, still add it (might be created later)
				files = []string{args[0]}
			}
		}

		config := &Config{
			MaxLines:    maxLines,
			Files:       files,
			RefreshRate: refreshRate,
			Include:     include,
			Exclude:     exclude,
			Timezone:    timezone,
			Timeout:     timeout,
		}

		app := NewApp(config)
		if err := app.Run(); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.Flags().IntVarP(&maxLines, "max_line", "m", 50000, "Maximum lines to keep in memory (accepted but has no effect)")
	rootCmd.Flags().StringSliceVarP(&files, "files", "e", []string{}, "List of files to process")
	rootCmd.Flags().IntVarP(&refreshRate, "refresh_rate", "r", 1, "Refresh rate in seconds")
	rootCmd.Flags().StringVarP(&include, "include", "i", "", "Default include filter pattern (regex)")
	rootCmd.Flags().StringVarP(&exclude, "exclude", "x", "", "Default exclude filter pattern (regex)")
	rootCmd.Flags().StringVar(&timezone, "timezone", "UTC", "Display timezone for timestamps (accepted but has no effect)")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 200*time.Millisecond, "Per-call deadline for gap-resolving index work")
}

func getFilesInDirectory(dir string) []string {
	var files []string
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip files with errors
		}
		if !info.IsDir() {
			// Only add regular files, not directories
			files = append(files, path)
		}
		return nil
	})
	return files
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

