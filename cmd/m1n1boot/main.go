// Command m1n1boot extracts and decompresses the kernel, device tree, and
// initramfs from a concatenated boot payload stream.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AsahiLinux/m1n1-sub001/payload"
)

var (
	inputFile  = flag.String("i", "", "input boot payload file path (required)")
	outputDir  = flag.String("o", "", "directory to write extracted kernel/fdt/initrd into (optional)")
	heapMiB    = flag.Int("heap", 256, "scratch+output heap size in MiB")
	maxOutMiB  = flag.Int("max-output", 128, "maximum size in MiB any single decompressed record may produce (0 = unbounded)")
	jsonOutput = flag.Bool("json", false, "output the summary as JSON")
	version    = flag.Bool("version", false, "print version and exit")
)

const appVersion = "0.1.0"

// summary is what gets printed for the operator: sizes only, never the
// payload bytes themselves.
type summary struct {
	KernelBytes int    `json:"kernel_bytes"`
	FDTBytes    int    `json:"fdt_bytes"`
	InitrdBytes int    `json:"initrd_bytes,omitempty"`
	KernelPath  string `json:"kernel_path,omitempty"`
	FDTPath     string `json:"fdt_path,omitempty"`
	InitrdPath  string `json:"initrd_path,omitempty"`
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -i <file> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Extracts the kernel, device tree, and initramfs from a boot payload stream.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -i boot.bin\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -i boot.bin -o ./out -json\n", os.Args[0])
	}
	flag.Parse()

	if *version {
		fmt.Printf("m1n1boot version %s\n", appVersion)
		os.Exit(0)
	}

	if *inputFile == "" {
		fmt.Fprintf(os.Stderr, "Error: input file required (-i)\n")
		flag.Usage()
		os.Exit(1)
	}

	blob, err := os.ReadFile(*inputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", *inputFile, err)
		os.Exit(1)
	}

	heap := payload.NewHeap(make([]byte, *heapMiB<<20))
	maxOutput := *maxOutMiB << 20

	result, err := payload.Run(blob, heap, maxOutput)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error processing %s: %v\n", *inputFile, err)
		os.Exit(1)
	}

	s := summary{
		KernelBytes: len(result.Kernel),
		FDTBytes:    len(result.FDT),
		InitrdBytes: len(result.Initrd),
	}

	if *outputDir != "" {
		if err := writeExtracted(*outputDir, result, &s); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
			os.Exit(1)
		}
	}

	if *jsonOutput {
		outputJSON(&s)
	} else {
		outputText(&s)
	}
}

func writeExtracted(dir string, result *payload.Result, s *summary) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if result.Kernel != nil {
		s.KernelPath = filepath.Join(dir, "kernel.bin")
		if err := os.WriteFile(s.KernelPath, result.Kernel, 0o644); err != nil {
			return err
		}
	}
	if result.FDT != nil {
		s.FDTPath = filepath.Join(dir, "devicetree.dtb")
		if err := os.WriteFile(s.FDTPath, result.FDT, 0o644); err != nil {
			return err
		}
	}
	if result.Initrd != nil {
		s.InitrdPath = filepath.Join(dir, "initrd.cpio")
		if err := os.WriteFile(s.InitrdPath, result.Initrd, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func outputJSON(s *summary) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}

func outputText(s *summary) {
	fmt.Printf("Kernel: %d bytes\n", s.KernelBytes)
	if s.KernelPath != "" {
		fmt.Printf("  -> %s\n", s.KernelPath)
	}
	fmt.Printf("Device tree: %d bytes\n", s.FDTBytes)
	if s.FDTPath != "" {
		fmt.Printf("  -> %s\n", s.FDTPath)
	}
	if s.InitrdBytes > 0 {
		fmt.Printf("Initramfs: %d bytes\n", s.InitrdBytes)
		if s.InitrdPath != "" {
			fmt.Printf("  -> %s\n", s.InitrdPath)
		}
	}
}
