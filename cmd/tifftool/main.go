// Command tifftool encodes and decodes TIFF images from the command line.
//
// Usage:
//
//	tifftool enc [options] <input>       PNG/JPEG/GIF/BMP → TIFF (use "-" for stdin)
//	tifftool dec [options] <input.tif>   TIFF → PNG/JPEG/BMP (use "-" for stdin, -o - for stdout)
//	tifftool info <input.tif>            Display TIFF metadata
//
// Defaults for the encoder options can be placed in a YAML config file and
// selected with -config; explicit flags override the file.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"go.uber.org/zap"
	"golang.org/x/image/bmp"
	"gopkg.in/yaml.v3"

	"github.com/tilepress/tiff"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "enc":
		err = runEnc(os.Args[2:])
	case "dec":
		err = runDec(os.Args[2:])
	case "info":
		err = runInfo(os.Args[2:])
	case "-h", "-help", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "tifftool: unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "tifftool: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage:
  tifftool enc [options] <input>       Encode PNG/JPEG/GIF/BMP to TIFF
  tifftool dec [options] <input.tif>   Decode TIFF to PNG, JPEG, or BMP
  tifftool info <input.tif>            Display TIFF metadata

Use "-" as input to read from stdin, "-o -" to write to stdout.

Run "tifftool <command> -h" for command-specific options.
`)
}

// openInput returns an io.ReadCloser for the given path.
// If path is "-", stdin is returned (caller should not close).
func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

// newLogger builds the diagnostic logger: silent by default, development
// output on stderr when verbose.
func newLogger(verbose bool) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// encConfig mirrors the encoder options in YAML form.
type encConfig struct {
	TileSize            int  `yaml:"tile_size"`
	Progressive         bool `yaml:"progressive"`
	Uncompressed        bool `yaml:"uncompressed"`
	TolerateShortWrites bool `yaml:"tolerate_short_writes"`
}

// loadConfig reads encoder defaults from a YAML file. A missing path
// returns zero-value defaults.
func loadConfig(path string) (*encConfig, error) {
	cfg := &encConfig{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// --- enc ---

func runEnc(args []string) error {
	fs := flag.NewFlagSet("enc", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML file with encoder defaults")
	tileSize := fs.Int("tile", -1, "tile edge length 16-256 (0=auto, -1=use config)")
	progressive := fs.Bool("progressive", false, "write row-by-row strips instead of tiles")
	uncompressed := fs.Bool("uncompressed", false, "disable Deflate compression")
	tolerate := fs.Bool("tolerate", false, "keep encoding past short writes")
	verbose := fs.Bool("v", false, "verbose diagnostics on stderr")
	output := fs.String("o", "", `output path (default: <input>.tif, "-" for stdout)`)

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("enc: missing input file\nUsage: tifftool enc [options] <input>")
	}
	inputPath := fs.Arg(0)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("enc: %w", err)
	}
	opts := optionsFromConfig(cfg)
	if *tileSize >= 0 {
		opts.TileSize = *tileSize
	}
	if *progressive {
		opts.Progressive = true
	}
	if *uncompressed {
		opts.Uncompressed = true
	}
	if *tolerate {
		opts.TolerateShortWrites = true
	}

	log := newLogger(*verbose)
	defer log.Sync()

	return encodeStatic(inputPath, *output, opts, log)
}

// optionsFromConfig converts file-level defaults into encoder options.
func optionsFromConfig(cfg *encConfig) *tiff.EncoderOptions {
	opts := tiff.DefaultOptions()
	opts.TileSize = cfg.TileSize
	opts.Progressive = cfg.Progressive
	opts.Uncompressed = cfg.Uncompressed
	opts.TolerateShortWrites = cfg.TolerateShortWrites
	return opts
}

func encodeStatic(inputPath, outputPath string, opts *tiff.EncoderOptions, log *zap.Logger) error {
	in, err := openInput(inputPath)
	if err != nil {
		return err
	}
	defer in.Close()

	img, format, err := image.Decode(in)
	if err != nil {
		return fmt.Errorf("enc: decoding input: %w", err)
	}
	log.Debug("decoded input",
		zap.String("format", format),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()))

	if outputPath == "-" {
		return tiff.Encode(os.Stdout, img, opts)
	}

	if outputPath == "" {
		if inputPath == "-" {
			outputPath = "output.tif"
		} else {
			base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
			outputPath = base + ".tif"
		}
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return err
	}

	if err := tiff.Encode(out, img, opts); err != nil {
		out.Close()
		os.Remove(outputPath)
		return fmt.Errorf("enc: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(outputPath)
		return err
	}

	fi, _ := os.Stat(outputPath)
	fmt.Fprintf(os.Stderr, "Encoded %s → %s (%d bytes)\n", inputPath, outputPath, fi.Size())
	return nil
}

// --- dec ---

func runDec(args []string) error {
	fs := flag.NewFlagSet("dec", flag.ContinueOnError)
	output := fs.String("o", "", `output path (default: .png, "-" for stdout)`)
	fmtFlag := fs.String("fmt", "", "output format: png, jpeg, bmp (auto-detect from extension if omitted)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("dec: missing input file\nUsage: tifftool dec [options] <input.tif>")
	}
	inputPath := fs.Arg(0)

	in, err := openInput(inputPath)
	if err != nil {
		return err
	}

	data, err := io.ReadAll(in)
	in.Close()
	if err != nil {
		return fmt.Errorf("dec: reading input: %w", err)
	}

	img, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("dec: %w", err)
	}

	outFmt := detectOutputFormat(*fmtFlag, *output)
	outputPath := *output

	if outputPath == "-" {
		return encodeImage(os.Stdout, img, outFmt)
	}

	if outputPath == "" {
		ext := "." + outFmt
		if outFmt == "jpeg" {
			ext = ".jpg"
		}
		if inputPath == "-" {
			outputPath = "output" + ext
		} else {
			base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
			outputPath = base + ext
		}
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return err
	}

	if err := encodeImage(out, img, outFmt); err != nil {
		out.Close()
		os.Remove(outputPath)
		return fmt.Errorf("dec: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(outputPath)
		return err
	}

	fmt.Fprintf(os.Stderr, "Decoded %s → %s\n", inputPath, outputPath)
	return nil
}

// detectOutputFormat returns "png", "jpeg", or "bmp" based on flag/extension.
func detectOutputFormat(fmtFlag, outputPath string) string {
	if fmtFlag != "" {
		return strings.ToLower(fmtFlag)
	}
	if outputPath != "" && outputPath != "-" {
		switch strings.ToLower(filepath.Ext(outputPath)) {
		case ".jpg", ".jpeg":
			return "jpeg"
		case ".bmp":
			return "bmp"
		}
	}
	return "png"
}

// encodeImage writes img in the specified format to w.
func encodeImage(w io.Writer, img image.Image, format string) error {
	switch format {
	case "jpeg", "jpg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
	case "bmp":
		return bmp.Encode(w, img)
	default:
		return png.Encode(w, img)
	}
}

// --- info ---

func runInfo(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("info: missing input file\nUsage: tifftool info <input.tif>")
	}
	inputPath := args[0]

	in, err := openInput(inputPath)
	if err != nil {
		return err
	}
	defer in.Close()

	feat, err := tiff.GetFeatures(in)
	if err != nil {
		return fmt.Errorf("info: %w", err)
	}

	name := inputPath
	if inputPath == "-" {
		name = "<stdin>"
	}

	label := color.New(color.FgCyan).SprintFunc()
	layout := "strips"
	if feat.Tiled {
		layout = "tiles"
	}
	compression := "none"
	if feat.Compressed {
		compression = "deflate"
	}

	fmt.Printf("%s %s\n", label("File:       "), name)
	fmt.Printf("%s %d x %d\n", label("Dimensions: "), feat.Width, feat.Height)
	fmt.Printf("%s %s\n", label("Pixels:     "), feat.Model)
	fmt.Printf("%s %v\n", label("Alpha:      "), feat.HasAlpha)
	fmt.Printf("%s %s\n", label("Layout:     "), layout)
	fmt.Printf("%s %s\n", label("Compression:"), compression)

	if inputPath != "-" {
		if fi, err := os.Stat(inputPath); err == nil {
			fmt.Printf("%s %d bytes\n", label("File size:  "), fi.Size())
		}
	}

	return nil
}
