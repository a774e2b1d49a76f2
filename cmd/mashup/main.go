package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/liuscraft/orion-mashup/internal/catalog"
	"github.com/liuscraft/orion-mashup/internal/config"
	"github.com/liuscraft/orion-mashup/internal/logging"
	"github.com/liuscraft/orion-mashup/internal/player"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "config file path")
	quote := flag.String("quote", "", "quote text to play (random catalog quote when empty)")
	quoteID := flag.String("quote-id", "", "catalog quote id to play")
	effects := flag.String("effects", "cow", "comma separated effect ids, the first one picks the voice")
	mode := flag.String("mode", "", "override mashup mode (segmented/duck)")
	interactive := flag.Bool("i", false, "read quotes from stdin, one per line (empty line plays a random quote)")
	flag.Parse()

	appConfig, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *mode != "" {
		appConfig.Mashup.Mode = *mode
		if err := appConfig.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
			os.Exit(1)
		}
	}
	if err := appConfig.ValidateKeys(true, false); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Init(appConfig.Logging.ToLogging()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()
	logging.SetSessionID(logging.NewSessionID())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, appConfig)
	if err != nil {
		logging.Fatalf("Failed to start: %v", err)
	}
	defer a.Close()

	newPresenter(os.Stdout).attach(a.player)

	effectIDs := splitEffects(*effects)
	for _, id := range effectIDs {
		if _, ok := a.catalog.Effect(id); !ok {
			logging.Warnf("Unknown effect %q, available: %s", id, strings.Join(a.catalog.EffectIDs(), ", "))
		}
	}

	if *interactive {
		runInteractive(ctx, a, effectIDs)
		return
	}

	text, err := pickQuote(a.catalog, *quote, *quoteID, "")
	if err != nil {
		logging.Fatalf("%v", err)
	}
	if err := a.player.Play(ctx, player.Request{Quote: text, Effects: effectIDs}); err != nil && !errors.Is(err, player.ErrCancelled) {
		logging.Errorf("Playback failed: %v", err)
	}
}

func splitEffects(s string) []string {
	var ids []string
	for _, part := range strings.Split(s, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, strings.ToLower(id))
		}
	}
	return ids
}

// pickQuote 优先显式文本，其次目录 ID，最后随机（避免与 lastID 重复）
func pickQuote(cat *catalog.Catalog, text, id, lastID string) (string, error) {
	if strings.TrimSpace(text) != "" {
		return text, nil
	}
	if id != "" {
		q, ok := cat.Quote(id)
		if !ok {
			return "", fmt.Errorf("unknown quote id %q", id)
		}
		return q.Text, nil
	}
	q, ok := cat.RandomQuote(nil, lastID)
	if !ok {
		return "", errors.New("catalog has no quotes")
	}
	return q.Text, nil
}

// runInteractive 每行触发一次播放，新的一行会强制停止上一次
func runInteractive(ctx context.Context, a *app, effects []string) {
	fmt.Println("Type a quote and press Enter. Empty line = random quote, 'stop' = stop, 'quit' = exit.")

	var wg sync.WaitGroup
	defer wg.Wait()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	lastID := ""
	for {
		select {
		case <-ctx.Done():
			a.player.Stop()
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(line)
			switch line {
			case "quit", "exit":
				a.player.Stop()
				return
			case "stop":
				a.player.Stop()
				continue
			}

			text := line
			if text == "" {
				q, ok := a.catalog.RandomQuote(nil, lastID)
				if !ok {
					fmt.Println("catalog has no quotes")
					continue
				}
				lastID, text = q.ID, q.Text
				fmt.Printf("%s (%s)\n", q.Text, q.Source)
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				err := a.player.Play(ctx, player.Request{Quote: text, Effects: effects})
				if err != nil && !errors.Is(err, player.ErrCancelled) {
					logging.Errorf("Playback failed: %v", err)
				}
			}()
		}
	}
}
