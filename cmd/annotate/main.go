package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	annotator "github.com/menta2k/box-annotator"
	"github.com/menta2k/box-annotator/internal/config"
	"github.com/menta2k/box-annotator/pkg/session"
	"github.com/menta2k/box-annotator/pkg/types"
)

const help = `commands:
  down X Y      start a box at surface point X,Y
  move X Y      drag to X,Y
  up            release (commits boxes larger than the minimum size)
  leave         pointer left the surface
  del I         delete box I
  clear         delete every box on this image
  save          save boxes and go to the next image
  skip          go to the next image without saving
  goto I        jump to image I
  list          list images with their status
  status        show the current image, boxes and progress
  render PATH   write the current surface to PATH
  suggest       pre-annotate the current image
  help          show this help
  quit          exit`

func main() {
	var configPath, apiURL, dataset, split string
	var prelabel bool
	var backend, url, model string
	var verbose bool

	flag.StringVar(&configPath, "config", config.GetConfigPath(), "config file (optional)")
	flag.StringVar(&apiURL, "api", "", "storage API base URL (overrides config)")
	flag.StringVar(&dataset, "dataset", "", "dataset name (overrides config)")
	flag.StringVar(&split, "split", "", "split sent with saves (overrides config)")
	flag.BoolVar(&prelabel, "prelabel", false, "enable pre-annotation")
	flag.StringVar(&backend, "backend", "", "pre-annotation backend: ollama, llamacpp or saliency")
	flag.StringVar(&url, "url", "", "vision server URL")
	flag.StringVar(&model, "model", "", "vision model name")
	flag.BoolVar(&verbose, "v", false, "verbose logging")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyFlags(cfg, apiURL, dataset, split, backend, url, model, prelabel)
	if cfg.API.Dataset == "" {
		log.Fatalf("usage: %s -dataset NAME [-api URL] [-split train] [-prelabel -backend ollama|llamacpp|saliency -model NAME] [-v]", filepath.Base(os.Args[0]))
	}

	if verbose {
		session.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	a, err := annotator.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create annotator: %v", err)
	}

	ctx := context.Background()
	if err := a.Session.Open(ctx, cfg.API.Dataset); err != nil {
		log.Fatalf("Failed to open dataset: %v", err)
	}
	a.Session.Wait()
	printStatus(os.Stdout, a.Session.Snapshot())

	if err := run(ctx, a, os.Stdin, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func applyFlags(cfg *config.Config, apiURL, dataset, split, backend, url, model string, prelabel bool) {
	if apiURL != "" {
		cfg.API.BaseURL = apiURL
	}
	if dataset != "" {
		cfg.API.Dataset = dataset
	}
	if split != "" {
		cfg.API.Split = split
	}
	if prelabel {
		cfg.Prelabel.Enabled = true
	}
	if backend != "" {
		cfg.Prelabel.Backend = backend
	}
	if url != "" {
		cfg.Prelabel.URL = url
	}
	if model != "" {
		cfg.Prelabel.Model = model
	}
}

// run reads commands line by line until quit or end of input
func run(ctx context.Context, a *annotator.Annotator, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		quit, err := execute(ctx, a, sc.Text(), out)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

func execute(ctx context.Context, a *annotator.Annotator, line string, out io.Writer) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	s := a.Session
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "down", "move":
		x, y, err := parsePoint(args)
		if err != nil {
			return false, err
		}
		if cmd == "down" {
			began, err := s.PointerDown(x, y)
			if err != nil {
				return false, err
			}
			switch {
			case began:
			case s.Snapshot().Drawing:
				fmt.Fprintln(out, "a box is already being drawn")
			default:
				fmt.Fprintln(out, "point is outside the image")
			}
			return false, nil
		}
		s.PointerMove(x, y)
		if p := s.Snapshot().Provisional; p != nil {
			fmt.Fprintf(out, "drawing %s\n", formatBox(*p))
		}

	case "up", "leave":
		var committed bool
		if cmd == "up" {
			committed = s.PointerUp()
		} else {
			committed = s.PointerLeave()
		}
		if committed {
			boxes := s.Snapshot().Boxes
			fmt.Fprintf(out, "box %d: %s\n", len(boxes)-1, formatBox(boxes[len(boxes)-1]))
		} else {
			fmt.Fprintln(out, "no box committed")
		}

	case "del":
		i, err := parseIndex(args)
		if err != nil {
			return false, err
		}
		s.DeleteBox(i)
		fmt.Fprintf(out, "%d boxes\n", len(s.Snapshot().Boxes))

	case "clear":
		s.ClearAll()
		fmt.Fprintln(out, "cleared")

	case "save":
		res, err := s.Save(ctx)
		if err != nil {
			return false, err
		}
		reportStep(out, s, res)

	case "skip":
		res, err := s.Skip()
		if err != nil {
			return false, err
		}
		reportStep(out, s, res)

	case "goto":
		i, err := parseIndex(args)
		if err != nil {
			return false, err
		}
		if err := s.JumpTo(i); err != nil {
			return false, err
		}
		s.Wait()
		printStatus(out, s.Snapshot())

	case "list":
		cur := s.Snapshot().Index
		for i, img := range s.Images() {
			mark, done := " ", " "
			if i == cur {
				mark = ">"
			}
			if img.HasAnnotation {
				done = "x"
			}
			fmt.Fprintf(out, "%s [%s] %3d  %s\n", mark, done, i, img.Filename)
		}

	case "status":
		printStatus(out, s.Snapshot())

	case "render":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: render PATH")
		}
		if err := a.SaveSurface(args[0]); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "wrote %s\n", args[0])

	case "suggest":
		n, err := s.Suggest(ctx)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, "%d suggested boxes added\n", n)

	case "help", "?":
		fmt.Fprintln(out, help)

	case "quit", "exit", "q":
		return true, nil

	default:
		return false, fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return false, nil
}

func reportStep(out io.Writer, s *session.Session, res session.StepResult) {
	if res.Complete {
		st := s.Snapshot().Stats
		fmt.Fprintf(out, "collection complete: %d/%d annotated\n", st.Annotated, st.Total)
		return
	}
	s.Wait()
	printStatus(out, s.Snapshot())
}

func printStatus(out io.Writer, st session.State) {
	if st.Stats.Total == 0 {
		fmt.Fprintf(out, "dataset %s has no images\n", st.Dataset)
		return
	}
	fmt.Fprintf(out, "[%d/%d] %s  progress %d%% (%d annotated)\n",
		st.Index+1, st.Stats.Total, st.Descriptor.Filename, st.Stats.Progress, st.Stats.Annotated)

	var le *session.LoadError
	switch {
	case errors.As(st.LoadErr, &le):
		fmt.Fprintf(out, "  image failed to load: %v\n", le.Cause)
	case st.Loading:
		fmt.Fprintln(out, "  loading...")
	default:
		fmt.Fprintf(out, "  %dx%d at scale %.3f, offset (%.1f, %.1f)\n",
			st.ImageWidth, st.ImageHeight, st.Transform.Scale, st.Transform.OffsetX, st.Transform.OffsetY)
	}
	for i, b := range st.Boxes {
		fmt.Fprintf(out, "  box %d: %s\n", i, formatBox(b))
	}
}

func formatBox(b types.PixelBox) string {
	return fmt.Sprintf("x=%.1f y=%.1f w=%.1f h=%.1f class=%d", b.X, b.Y, b.Width, b.Height, b.ClassID)
}

func parsePoint(args []string) (float64, float64, error) {
	if len(args) != 2 {
		return 0, 0, fmt.Errorf("expected X Y")
	}
	x, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid X: %w", err)
	}
	y, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid Y: %w", err)
	}
	return x, y, nil
}

func parseIndex(args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected an index")
	}
	i, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid index: %w", err)
	}
	return i, nil
}
