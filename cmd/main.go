package main

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aligator/sdfat"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	log  = logrus.New()
	osFs = afero.NewOsFs()

	cfg        = defaultConfig()
	configPath string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "sdfat",
		Short:        "Work with FAT12/16/32 volume images",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "yaml config file")
	flags.StringVarP(&cfg.Image, "image", "i", "", "volume image file")
	flags.Int64Var(&cfg.Offset, "offset", 0, "byte offset of the volume inside the image")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "panic|fatal|error|warn|info|debug|trace")
	flags.StringVar(&cfg.Clock, "clock", cfg.Clock, "timestamps of new entries: system|none")

	root.AddCommand(
		mkfsCmd(),
		infoCmd(),
		lsCmd(),
		catCmd(),
		putCmd(),
		getCmd(),
		mkdirCmd(),
		rmCmd(),
		rmdirCmd(),
		mvCmd(),
		truncateCmd(),
	)
	return root
}

// setup merges the config file below the flags which were set explicitly.
func setup(cmd *cobra.Command) error {
	if configPath != "" {
		fromFile := defaultConfig()
		if err := loadConfig(configPath, &fromFile); err != nil {
			return err
		}

		flags := cmd.Flags()
		if !flags.Changed("image") {
			cfg.Image = fromFile.Image
		}
		if !flags.Changed("offset") {
			cfg.Offset = fromFile.Offset
		}
		if !flags.Changed("log-level") {
			cfg.LogLevel = fromFile.LogLevel
		}
		if !flags.Changed("clock") {
			cfg.Clock = fromFile.Clock
		}
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)

	if cfg.Image == "" {
		return fmt.Errorf("no image given, use --image or the config file")
	}
	return nil
}

// withFs mounts the image, runs fn and unmounts again.
func withFs(fn func(fsys *sdfat.Fs) error) (err error) {
	image, err := osFs.OpenFile(cfg.Image, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer image.Close()

	opts, err := cfg.options(log)
	if err != nil {
		return err
	}

	fsys, err := sdfat.New(sdfat.NewImageDeviceAt(image, cfg.Offset), opts...)
	if err != nil {
		return fmt.Errorf("mount %s: %w", cfg.Image, err)
	}
	defer func() {
		if unmountErr := fsys.Unmount(); err == nil {
			err = unmountErr
		}
	}()

	return fn(fsys)
}

func mkfsCmd() *cobra.Command {
	var (
		size, fatType, label string
		blocksPerCluster     uint8
		rootEntries          uint16
	)

	cmd := &cobra.Command{
		Use:   "mkfs",
		Short: "Create or overwrite the image with an empty volume",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			bytes, err := parseSize(size)
			if err != nil {
				return err
			}
			if bytes%sdfat.BlockSize != 0 {
				return fmt.Errorf("size must be a multiple of %d", sdfat.BlockSize)
			}
			t, err := parseFATType(fatType)
			if err != nil {
				return err
			}

			image, err := osFs.OpenFile(cfg.Image, os.O_RDWR|os.O_CREATE, 0644)
			if err != nil {
				return err
			}
			defer image.Close()

			if cfg.Offset == 0 {
				if err := image.Truncate(bytes); err != nil {
					return err
				}
			}

			return sdfat.Format(sdfat.NewImageDeviceAt(image, cfg.Offset), uint32(bytes/sdfat.BlockSize), sdfat.FormatConfig{
				Type:             t,
				BlocksPerCluster: blocksPerCluster,
				Label:            label,
				RootEntries:      rootEntries,
			}, sdfat.WithLogger(log))
		},
	}

	cmd.Flags().StringVar(&size, "size", "16m", "volume size (e.g. 1440k, 16m, 1g)")
	cmd.Flags().StringVar(&fatType, "type", "auto", "auto|fat12|fat16|fat32")
	cmd.Flags().StringVar(&label, "label", "", "volume label (<=11 characters)")
	cmd.Flags().Uint8Var(&blocksPerCluster, "cluster", 0, "blocks per cluster, 0 picks the smallest possible")
	cmd.Flags().Uint16Var(&rootEntries, "root-entries", 0, "FAT12/16 root directory entries, 0 for 512")
	return cmd
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the volume geometry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withFs(func(fsys *sdfat.Fs) error {
				vol := fsys.Volume()
				free, err := vol.FreeClusterCount()
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "type:          %v\n", vol.FATType())
				fmt.Fprintf(out, "label:         %s\n", vol.Label())
				fmt.Fprintf(out, "serial:        %04X-%04X\n", vol.Serial()>>16, vol.Serial()&0xFFFF)
				fmt.Fprintf(out, "cluster size:  %d\n", vol.ClusterBytes())
				fmt.Fprintf(out, "clusters:      %d\n", vol.ClusterCount())
				fmt.Fprintf(out, "free clusters: %d\n", free)
				fmt.Fprintf(out, "FATs:          %d x %d blocks at %d\n", vol.FATCount(), vol.BlocksPerFAT(), vol.FATStartBlock())
				fmt.Fprintf(out, "data start:    %d\n", vol.DataStartBlock())
				return nil
			})
		},
	}
}

func lsCmd() *cobra.Command {
	var recursive bool

	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "/"
			if len(args) > 0 {
				name = args[0]
			}

			return withFs(func(fsys *sdfat.Fs) error {
				dir, err := fsys.OpenPath(name, sdfat.ORead)
				if err != nil {
					return err
				}
				defer dir.Close()

				out := cmd.OutOrStdout()
				return dir.List(recursive, func(depth int, entry sdfat.DirEntry) error {
					kind := "-"
					if entry.IsDir() {
						kind = "d"
					}
					_, err := fmt.Fprintf(out, "%s %10d %s %s%s\n",
						kind, entry.FileSize, entry.ModTime().Format("2006-01-02 15:04"),
						strings.Repeat("  ", depth), entry.DisplayName())
					return err
				})
			})
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "list subdirectories")
	return cmd
}

func catCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>",
		Short: "Print a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFs(func(fsys *sdfat.Fs) error {
				f, err := fsys.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()

				_, err = io.Copy(cmd.OutOrStdout(), f)
				return err
			})
		},
	}
}

func putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <local file> [path]",
		Short: "Copy a local file onto the volume",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			src, err := osFs.Open(args[0])
			if err != nil {
				return err
			}
			defer src.Close()

			target := strings.ToUpper(filepath.Base(args[0]))
			if len(args) > 1 {
				target = args[1]
			}

			return withFs(func(fsys *sdfat.Fs) error {
				dst, err := fsys.Create(target)
				if err != nil {
					return err
				}

				n, err := io.Copy(dst, src)
				if err != nil {
					_ = dst.Close()
					return err
				}
				log.WithFields(logrus.Fields{"path": target, "bytes": n}).Info("copied")
				return dst.Close()
			})
		},
	}
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <path> [local file]",
		Short: "Copy a file from the volume",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			target := path.Base(args[0])
			if len(args) > 1 {
				target = args[1]
			}

			return withFs(func(fsys *sdfat.Fs) error {
				src, err := fsys.Open(args[0])
				if err != nil {
					return err
				}
				defer src.Close()

				dst, err := osFs.Create(target)
				if err != nil {
					return err
				}

				if _, err := io.Copy(dst, src); err != nil {
					_ = dst.Close()
					return err
				}
				return dst.Close()
			})
		},
	}
}

func mkdirCmd() *cobra.Command {
	var parents bool

	cmd := &cobra.Command{
		Use:   "mkdir <path>...",
		Short: "Create directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withFs(func(fsys *sdfat.Fs) error {
				for _, name := range args {
					mkdir := fsys.Mkdir
					if parents {
						mkdir = fsys.MkdirAll
					}
					if err := mkdir(name, 0755); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&parents, "parents", "p", false, "create missing parents, no error if existing")
	return cmd
}

func rmCmd() *cobra.Command {
	var recursive bool

	cmd := &cobra.Command{
		Use:   "rm <path>...",
		Short: "Remove files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withFs(func(fsys *sdfat.Fs) error {
				for _, name := range args {
					if recursive {
						if err := fsys.RemoveAll(name); err != nil {
							return err
						}
						continue
					}

					info, err := fsys.Stat(name)
					if err != nil {
						return err
					}
					if info.IsDir() {
						return fmt.Errorf("%s is a directory, use -r", name)
					}
					if err := fsys.Remove(name); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "remove directories and their content")
	return cmd
}

func rmdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rmdir <path>...",
		Short: "Remove empty directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withFs(func(fsys *sdfat.Fs) error {
				for _, name := range args {
					info, err := fsys.Stat(name)
					if err != nil {
						return err
					}
					if !info.IsDir() {
						return fmt.Errorf("%s is not a directory", name)
					}
					if err := fsys.Remove(name); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func mvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <old> <new>",
		Short: "Rename or move a file or directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return withFs(func(fsys *sdfat.Fs) error {
				return fsys.Rename(args[0], args[1])
			})
		},
	}
}

func truncateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "truncate <path> <size>",
		Short: "Shrink a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			size, err := parseSize(args[1])
			if err != nil {
				return err
			}

			return withFs(func(fsys *sdfat.Fs) error {
				f, err := fsys.OpenFile(args[0], os.O_WRONLY, 0)
				if err != nil {
					return err
				}
				if err := f.Truncate(size); err != nil {
					_ = f.Close()
					return err
				}
				return f.Close()
			})
		},
	}
}
