package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// PromptWatcher monitors the configured prompt template source (file or
// folder) and invokes the supplied callback whenever templates change. Stop
// must be called to release filesystem resources.
type PromptWatcher struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop halts the watcher and waits for the underlying goroutine to exit.
func (w *PromptWatcher) Stop() {
	if w == nil {
		return
	}
	w.once.Do(func() {
		w.cancel()
		<-w.done
	})
}

// WatchPrompt wires fsnotify around the prompt template source and signals
// onChange after any relevant write settles. The callback runs on the watcher
// goroutine; callers reload their compiled templates inside it.
func WatchPrompt(ctx context.Context, cfg PromptConfig, onChange func(), onError func(error)) (*PromptWatcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("config: watch prompt requires a change callback")
	}
	if cfg.TemplateFile == "" && cfg.TemplatesFolder == "" {
		return nil, fmt.Errorf("config: no prompt template source configured for watching")
	}

	watchCtx, cancel := context.WithCancel(ctx)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("config: watch prompt: %w", err)
	}

	targetFile := ""
	watchDir := ""
	if cfg.TemplateFile != "" {
		resolved := cfg.TemplateFile
		if abs, absErr := filepath.Abs(cfg.TemplateFile); absErr == nil {
			resolved = abs
		}
		targetFile = filepath.Clean(resolved)
		watchDir = filepath.Dir(targetFile)
	} else {
		resolved := cfg.TemplatesFolder
		if abs, absErr := filepath.Abs(cfg.TemplatesFolder); absErr == nil {
			resolved = abs
		}
		watchDir = filepath.Clean(resolved)
	}
	if err := watcher.Add(watchDir); err != nil {
		closeErr := watcher.Close()
		cancel()
		if closeErr != nil && onError != nil {
			onError(fmt.Errorf("config: watch prompt close: %w", closeErr))
		}
		return nil, fmt.Errorf("config: watch add %s: %w", watchDir, err)
	}

	done := make(chan struct{})
	watch := &PromptWatcher{cancel: cancel, done: done}

	go func() {
		defer close(done)
		defer func() {
			if err := watcher.Close(); err != nil && onError != nil {
				onError(fmt.Errorf("config: watch prompt close: %w", err))
			}
		}()

		const debounce = 25 * time.Millisecond
		var reloadTimer *time.Timer
		var reloadSignal <-chan time.Time
		scheduleReload := func() {
			if reloadTimer == nil {
				reloadTimer = time.NewTimer(debounce)
			} else {
				if !reloadTimer.Stop() {
					select {
					case <-reloadTimer.C:
					default:
					}
				}
				reloadTimer.Reset(debounce)
			}
			reloadSignal = reloadTimer.C
		}
		flushTimer := func() {
			if reloadTimer == nil {
				return
			}
			if !reloadTimer.Stop() {
				select {
				case <-reloadTimer.C:
				default:
				}
			}
			reloadSignal = nil
		}
		defer flushTimer()

		for {
			select {
			case <-watchCtx.Done():
				return
			case <-reloadSignal:
				flushTimer()
				onChange()
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				name := filepath.Clean(event.Name)
				if targetFile != "" {
					if name != targetFile {
						continue
					}
					if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && onError != nil {
						onError(fmt.Errorf("config: prompt template %s removed", targetFile))
					}
				} else if !isTemplateFile(name) {
					if event.Op&fsnotify.Create != 0 {
						if info, statErr := os.Stat(name); statErr == nil && info.IsDir() {
							continue
						}
					}
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) == 0 {
					continue
				}
				scheduleReload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(fmt.Errorf("config: watch error: %w", err))
				}
			}
		}
	}()

	return watch, nil
}

func isTemplateFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tmpl", ".txt", ".gotmpl":
		return true
	}
	return false
}
