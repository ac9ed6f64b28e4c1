package main

import (
	"fmt"
	"io"
	"os"

	"github.com/aligator/sdfat"
	"github.com/spf13/afero"
)

// main is just an example to play with sdfat.
// It walks the volume of the given image and appends a line to LOG.TXT.
func main() {
	argsWithoutProg := os.Args[1:]
	if len(argsWithoutProg) <= 0 {
		fmt.Println("Please provide a filename.")
		os.Exit(1)
	}

	image, err := afero.NewOsFs().OpenFile(argsWithoutProg[0], os.O_RDWR, 0)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer image.Close()

	fat, err := sdfat.NewFromImage(image)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer fat.Unmount()

	fmt.Printf("Opened volume '%v' with type %v\n\n", fat.Label(), fat.FSType())

	err = afero.Walk(fat, "/", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		fmt.Println(path, info.IsDir(), info.Size(), info.ModTime())
		return nil
	})
	if err != nil {
		fmt.Println("could not walk the volume", err)
		os.Exit(1)
	}

	file, err := fat.OpenFile("LOG.TXT", os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		fmt.Println("could not open the log file", err)
		os.Exit(1)
	}
	defer file.Close()

	if _, err := file.WriteString("example was here\n"); err != nil {
		fmt.Println("could not append to the log file", err)
		os.Exit(1)
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		fmt.Println("could not seek", err)
		os.Exit(1)
	}

	content, err := io.ReadAll(file)
	if err != nil {
		fmt.Println("could not read the log file", err)
		os.Exit(1)
	}
	fmt.Println("\n\nContent of LOG.TXT:\n\n" + string(content))
}
