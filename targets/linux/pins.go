//go:build linux

package main

import (
	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/multierr"

	"analogio/core"
)

// line is a requested GPIO output.
type line struct {
	l *gpiocdev.Line
}

func (p line) Set(high bool) error {
	v := 0
	if high {
		v = 1
	}
	return p.l.SetValue(v)
}

// lines owns every GPIO line the firmware requested.
type lines struct {
	chip string
	held []*gpiocdev.Line
}

// output requests offset as an output at the given initial level.
func (ls *lines) output(offset int, high bool, consumer string) (core.OutputPin, error) {
	v := 0
	if high {
		v = 1
	}
	l, err := gpiocdev.RequestLine(ls.chip, offset,
		gpiocdev.AsOutput(v), gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, errors.Wrapf(err, "request %s line %d", ls.chip, offset)
	}
	ls.held = append(ls.held, l)
	return line{l: l}, nil
}

func (ls *lines) Close() error {
	var err error
	for _, l := range ls.held {
		err = multierr.Append(err, l.Close())
	}
	ls.held = nil
	return err
}
