package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aligator/sdfat"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

var images = []struct {
	name string
	size int64
	cfg  sdfat.FormatConfig
}{
	{name: "fat12.img", size: 1 << 20, cfg: sdfat.FormatConfig{Type: sdfat.FAT12, Label: "FAT12"}},
	{name: "fat16.img", size: 16 << 20, cfg: sdfat.FormatConfig{Type: sdfat.FAT16, Label: "FAT16"}},
	{name: "fat32.img", size: 64 << 20, cfg: sdfat.FormatConfig{Type: sdfat.FAT32, Label: "FAT32"}},
}

// main writes small test images with some files. Can be executed using 'go run ./cmd/generate' from the project root.
func main() {
	dest := "testdata"
	if len(os.Args) > 1 {
		dest = os.Args[1]
	}

	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(dest, 0755); err != nil {
		panic(err)
	}

	for _, img := range images {
		if err := generate(osFs, filepath.Join(dest, img.name), img.size, img.cfg); err != nil {
			panic(fmt.Errorf("%s: %w", img.name, err))
		}
		logrus.WithField("image", img.name).Info("generated")
	}
}

func generate(osFs afero.Fs, name string, size int64, cfg sdfat.FormatConfig) error {
	image, err := osFs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer image.Close()

	if err := image.Truncate(size); err != nil {
		return err
	}

	if err := sdfat.Format(sdfat.NewImageDevice(image), uint32(size/sdfat.BlockSize), cfg); err != nil {
		return err
	}

	fat, err := sdfat.NewFromImage(image)
	if err != nil {
		return err
	}

	if err := fat.MkdirAll("/DOCS/OLD", 0755); err != nil {
		return err
	}
	files := map[string]string{
		"/README.TXT":         "Test image generated by sdfat.\n",
		"/DOCS/NOTES.TXT":     "Some notes.\n",
		"/DOCS/OLD/EMPTY.TXT": "",
	}
	for path, content := range files {
		if err := afero.WriteFile(fat, path, []byte(content), 0644); err != nil {
			return err
		}
	}

	return fat.Unmount()
}
