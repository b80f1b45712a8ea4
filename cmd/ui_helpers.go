// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"taproom/cli/internal/pipeline"
)

// startInlineSpinner animates text on the current stdout line until the
// returned function is called, which also clears the line.
func startInlineSpinner(text string) func() {
	return spinOn(os.Stdout, text, 100*time.Millisecond)
}

func spinOn(w io.Writer, text string, interval time.Duration) func() {
	stop := make(chan struct{})
	var (
		wg   sync.WaitGroup
		line pipeline.LineState
		once sync.Once
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		last := ""
		for {
			select {
			case <-stop:
				fmt.Fprintf(w, "\r%*s\r", len([]rune(last)), "")
				return
			case <-ticker.C:
				last = line.Pad(fmt.Sprintf("%s %s", spinnerFrames[line.Frame()%len(spinnerFrames)], text))
				fmt.Fprintf(w, "\r%s", last)
			}
		}
	}()
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
		})
	}
}
