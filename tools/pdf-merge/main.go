// seehuhn.de/go/pdfmerge - merging and copying PDF files
// Copyright (C) 2025  Jochen Voss <voss@seehuhn.de>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Pdf-merge concatenates pages of PDF files.
//
// Every argument names an input file, optionally followed by "=" and a
// list of page ranges, for example "in.pdf=1-3,7".  Pages are written in
// the order given on the command line.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"runtime/pprof"
	"time"

	"golang.org/x/term"

	"seehuhn.de/go/pdfmerge"
	"seehuhn.de/go/pdfmerge/outline"
	"seehuhn.de/go/pdfmerge/pagetree"
	"seehuhn.de/go/pdfmerge/pdf"
)

const toolName = "pdf-merge"

func main() {
	out := flag.String("o", "out.pdf", "output file name")
	force := flag.Bool("f", false, "overwrite output file if it exists")
	smart := flag.Bool("smart", false, "store identical streams only once")
	withOutline := flag.Bool("outline", false, "add a bookmark for every input file")
	title := flag.String("title", "", "document title")
	xmp := flag.Bool("xmp", false, "add an XMP metadata stream")
	verbose := flag.Bool("v", false, "show debug messages")
	showVersion := flag.Bool("version", false, "show version information and exit")
	cpuprofile := flag.String("cpuprofile", "", "write cpu profile to `file`")
	memprofile := flag.String("memprofile", "", "write memory profile to `file`")
	flag.Parse()

	if *showVersion {
		fmt.Println(producer())
		return
	}

	if len(flag.Args()) < 1 {
		fmt.Fprintln(os.Stderr, "error: no input files given")
		flag.Usage()
		os.Exit(1)
	}

	if !*force {
		if _, err := os.Stat(*out); !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "error: output file %q already exists\n", *out)
			os.Exit(1)
		}
	}

	inputs := make([]*input, len(flag.Args()))
	for i, arg := range flag.Args() {
		in, err := parseInput(arg)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		inputs[i] = in
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	stop, err := startProfile(*cpuprofile, *memprofile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	m := &merger{
		log:         logger,
		progress:    term.IsTerminal(int(os.Stderr.Fd())),
		withOutline: *withOutline,
	}
	opt := &pdfmerge.Options{
		Smart:           *smart,
		CompressStreams: true,
		Info: &pdf.Info{
			Title:        *title,
			Producer:     producer(),
			CreationDate: time.Now(),
		},
		Metadata: *xmp,
		Logger:   logger,
	}
	err = m.run(*out, inputs, opt)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type merger struct {
	log         *slog.Logger
	progress    bool
	withOutline bool
}

func (m *merger) run(out string, inputs []*input, opt *pdfmerge.Options) error {
	s, err := pdfmerge.Create(out, opt)
	if err != nil {
		return err
	}

	var o *outline.Outline
	if m.withOutline {
		o = &outline.Outline{}
	}
	for _, in := range inputs {
		err = m.add(s, o, in)
		if err != nil {
			s.Abort()
			return err
		}
	}
	s.SetOutlines(o)

	return s.Close()
}

func (m *merger) add(s *pdfmerge.Session, o *outline.Outline, in *input) error {
	r, err := pdf.Open(in.fname, nil)
	if err != nil {
		return err
	}
	defer s.FreeReader(r)

	n, err := pagetree.NumPages(r)
	if err != nil {
		return fmt.Errorf("%s: %w", in.fname, err)
	}
	pages, err := in.pageList(n)
	if err != nil {
		return err
	}

	first := s.NumPages()
	for _, pageNo := range pages {
		err = s.AddPage(r, pageNo)
		if err != nil {
			return err
		}
	}
	err = s.CopyAcroForm(r)
	if err != nil {
		return err
	}
	err = s.CopyOutputIntents(r)
	if err != nil {
		return err
	}

	if o != nil && len(pages) > 0 {
		item := o.AddItem(filepath.Base(in.fname), first)
		if in.ranges == nil {
			// the source outline is only kept if all pages are copied
			srcOutline, err := outline.Read(r)
			if err != nil {
				m.log.Warn("cannot read outline", "file", in.fname, "error", err)
			} else if srcOutline != nil {
				srcOutline.Shift(first)
				item.Children = srcOutline.Items
			}
		}
	}

	if m.progress {
		fmt.Fprintf(os.Stderr, "%s: %d pages\n", in.fname, len(pages))
	}
	return nil
}

// startProfile begins CPU profiling (if cpuprofile is non-empty) and returns
// a function which stops CPU profiling and writes the memory profile (if
// memprofile is non-empty).
func startProfile(cpuprofile, memprofile string) (stop func(), err error) {
	var cpuFile *os.File
	if cpuprofile != "" {
		cpuFile, err = os.Create(cpuprofile)
		if err != nil {
			return nil, fmt.Errorf("could not create CPU profile: %w", err)
		}
		if err = pprof.StartCPUProfile(cpuFile); err != nil {
			cpuFile.Close()
			return nil, fmt.Errorf("could not start CPU profile: %w", err)
		}
	}

	stop = func() {
		if cpuFile != nil {
			pprof.StopCPUProfile()
			cpuFile.Close()
		}
		if memprofile == "" {
			return
		}
		f, err := os.Create(memprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not create memory profile: %v\n", err)
			return
		}
		defer f.Close()
		runtime.GC()
		err = pprof.Lookup("allocs").WriteTo(f, 0)
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not write memory profile: %v\n", err)
		}
	}
	return stop, nil
}

// producer returns the name and version of this program, for use in the
// /Producer entry of the output, e.g. "pdf-merge (seehuhn.de/go/pdfmerge v0.1.0)".
func producer() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return toolName
	}

	version := info.Main.Version
	if version != "" && version != "(devel)" {
		return toolName + " (" + info.Main.Path + " " + version + ")"
	}

	var rev string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev == "" {
		return toolName
	}
	if len(rev) > 8 {
		rev = rev[:8]
	}
	if dirty {
		rev += "+dirty"
	}
	return toolName + " (" + info.Main.Path + " " + rev + ")"
}
