// Command huffarc compresses files and directories into huffarc
// archives and extracts them again.
//
// Usage:
//
//	huffarc -c [flags] <input> <output-dir>
//	huffarc -d [flags] <archive.huff> <output-dir>
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"golang.org/x/term"

	"github.com/scigolib/huffarc"
	"github.com/scigolib/huffarc/internal/config"
	"github.com/scigolib/huffarc/internal/digest"
)

type stringList []string

func (l *stringList) String() string { return fmt.Sprint(*l) }
func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	log.SetFlags(0)

	compress := flag.Bool("c", false, "Compress input into an archive")
	extract := flag.Bool("d", false, "Decompress an archive")
	codecName := flag.String("codec", "", "Symbol alphabet: binary (default) or utf-8")
	configPath := flag.String("config", "", "Path to a YAML config file")
	var excludes, protect stringList
	flag.Var(&excludes, "exclude", "Glob pattern to skip (repeatable)")
	flag.Var(&protect, "protect", "Relative path to password-protect (repeatable)")
	flag.Parse()

	args := flag.Args()
	if *compress == *extract || len(args) != 2 {
		fmt.Println("Usage: huffarc -c|-d [flags] <input> <output-dir>")
		fmt.Println("Flags:")
		flag.PrintDefaults()
		os.Exit(2)
	}
	input, outDir := args[0], args[1]

	cfg := &config.Config{}
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *codecName == "" {
		*codecName = cfg.Codec
	}
	codec := huffarc.CodecBinary
	switch *codecName {
	case "", "binary":
	case "utf-8":
		codec = huffarc.CodecUTF8
	default:
		log.Fatalf("Unknown codec %q", *codecName)
	}
	excludes = append(excludes, cfg.Excludes...)
	protect = append(protect, cfg.Protect...)

	bar := newProgressBar(os.Stderr)

	if *compress {
		keys, err := collectKeys(protect)
		if err != nil {
			log.Fatalf("Failed to read passwords: %v", err)
		}
		res, err := huffarc.Compress(input, outDir, &huffarc.CompressOptions{
			Codec:     codec,
			BlockSize: cfg.BlockSize,
			Excludes:  excludes,
			Progress:  bar,
			Passwords: func(rel string) []byte { return keys[rel] },
		})
		bar.Finish()
		if err != nil {
			log.Fatalf("Compression failed: %v", err)
		}
		fmt.Printf("Wrote %s: %d entries, %d -> %d bytes (%.1f%% saved)\n",
			res.ArchivePath, res.Entries, res.InputBytes, res.ArchiveBytes, res.Ratio()*100)
		return
	}

	res, err := huffarc.Extract(input, outDir, &huffarc.ExtractOptions{
		Progress: bar,
		Prompt:   promptKey,
	})
	bar.Finish()
	if err != nil {
		log.Fatalf("Extraction failed: %v", err)
	}
	fmt.Printf("Extracted %d entries into %s\n", len(res.Extracted), res.OutputDir)
	for _, p := range res.Skipped {
		fmt.Printf("Skipped %s (no valid password)\n", p)
	}
}

// collectKeys asks for a password twice per protected path and
// derives the 16-byte entry key as MD5 of the password.
func collectKeys(paths []string) (map[string][]byte, error) {
	keys := make(map[string][]byte, len(paths))
	for _, p := range paths {
		for {
			fmt.Fprintf(os.Stderr, "Password for %s: ", p)
			pw, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return nil, err
			}
			if len(pw) == 0 {
				fmt.Fprintln(os.Stderr, "Empty password, try again.")
				continue
			}
			fmt.Fprintf(os.Stderr, "Repeat password for %s: ", p)
			again, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return nil, err
			}
			if string(pw) != string(again) {
				fmt.Fprintln(os.Stderr, "Passwords do not match, try again.")
				continue
			}
			sum := digest.Sum(pw)
			keys[p] = sum[:]
			break
		}
	}
	return keys, nil
}

// promptKey is the extract-side password prompt. An empty password
// skips the entry; otherwise the candidate key is MD5 of the input.
func promptKey(path string, attempt int) []byte {
	if attempt == 1 {
		fmt.Fprintf(os.Stderr, "\nEntry %s is password protected (empty input skips it).\n", path)
	} else {
		fmt.Fprintf(os.Stderr, "Wrong password, %d attempt(s) left.\n", 1+huffarcMaxAttempts-attempt)
	}
	fmt.Fprintf(os.Stderr, "Password for %s: ", path)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil || len(pw) == 0 {
		return nil
	}
	sum := digest.Sum(pw)
	return sum[:]
}

// Matches the reader's per-entry attempt bound.
const huffarcMaxAttempts = 3
