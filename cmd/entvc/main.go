package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/idiotf/entry-video-compress/internal/services"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, services.ErrCanceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
