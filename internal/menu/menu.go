// Copyright (C) 2026 The avdforge authors
// License: AGPL-3.0-only

// Package menu implements the interactive numeric menu that is the
// program's default surface. Each entry dispatches to a handler; handler
// errors are printed and the loop continues.
package menu

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Item is one selectable menu entry.
type Item struct {
	Key   string
	Label string
	Run   func() error
}

type Menu struct {
	Title string
	items []Item
	in    *bufio.Reader
	out   io.Writer
}

func New(title string, in io.Reader, out io.Writer) *Menu {
	return &Menu{Title: title, in: bufio.NewReader(in), out: out}
}

func (m *Menu) Add(key, label string, run func() error) {
	m.items = append(m.items, Item{Key: key, Label: label, Run: run})
}

func (m *Menu) print() {
	fmt.Fprintf(m.out, "\n%s\n", color.New(color.Bold).Sprint(m.Title))
	for _, it := range m.items {
		fmt.Fprintf(m.out, "%s) %s\n", it.Key, it.Label)
	}
	fmt.Fprintln(m.out, "q) Quit")
	fmt.Fprint(m.out, "Choose an option: ")
}

// Loop reads one choice per iteration until quit or end of input.
func (m *Menu) Loop() error {
	for {
		m.print()
		line, err := m.in.ReadString('\n')
		choice := strings.ToLower(strings.TrimSpace(line))
		if choice == "q" || choice == "quit" || choice == "exit" {
			fmt.Fprintln(m.out, "Exiting.")
			return nil
		}
		if err != nil {
			if err == io.EOF {
				fmt.Fprintln(m.out)
				return nil
			}
			return err
		}
		item, ok := m.lookup(choice)
		if !ok {
			fmt.Fprintln(m.out, "Unknown choice.")
			continue
		}
		if runErr := item.Run(); runErr != nil {
			fmt.Fprintln(m.out, color.New(color.FgRed).Sprintf("Error: %v", runErr))
		}
	}
}

func (m *Menu) lookup(key string) (Item, bool) {
	for _, it := range m.items {
		if it.Key == key {
			return it, true
		}
	}
	return Item{}, false
}
