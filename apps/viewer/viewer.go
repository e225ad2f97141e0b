package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-materials/core/countdown"
	"github.com/trezcool/masomo-materials/core/material"
)

type viewer struct {
	api      *apiClient
	in       *bufio.Reader
	out      io.Writer
	interval time.Duration
	now      func() time.Time // mockable
}

// watch opens a video: it starts (or resumes) the access window, renders the countdown
// until expiry and then offers to request an extension.
func (v *viewer) watch(ctx context.Context, materialID string) error {
	res, err := v.api.start(ctx, materialID)
	if err != nil {
		return err
	}

	cd := countdown.New(localStart(res, v.now()), res.IsExtended)
	cd.Now = v.now
	if v.interval > 0 {
		cd.Interval = v.interval
	}

	kind := "standard"
	if res.IsExtended {
		kind = "extended"
	}
	fmt.Fprintf(v.out, "%s window started at %s\n", kind, res.StartedAt.Local().Format(time.RFC1123))

	st := cd.Run(ctx, func(st countdown.State) {
		fmt.Fprintf(v.out, "\rremaining: %-10s", st)
	})
	fmt.Fprintln(v.out)
	if !st.Expired {
		return ctx.Err()
	}

	fmt.Fprintln(v.out, "your viewing window has expired")
	if res.IsExtended {
		return nil
	}
	return v.offerExtension(ctx, materialID)
}

func (v *viewer) offerExtension(ctx context.Context, materialID string) error {
	fmt.Fprint(v.out, "reason for an extension (leave empty to skip): ")
	reason, err := v.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return errors.Wrap(err, "reading reason")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil
	}

	id, err := v.api.extend(ctx, materialID, reason)
	if isAPIError(err, http.StatusBadRequest) {
		fmt.Fprintf(v.out, "extension not requested: %s\n", errors.Cause(err).(*apiError).Message)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(v.out, "extension request %s submitted; your teacher will review it\n", id)
	return nil
}

// localStart maps the server's window onto the local clock so that the server's remaining time wins over clock skew.
func localStart(res material.StartResult, now time.Time) time.Time {
	remaining := time.Duration(res.RemainingSeconds) * time.Second
	return now.Add(remaining - material.WindowDuration(res.IsExtended))
}
