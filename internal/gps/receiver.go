// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"
)

// ParseLine parses one NMEA line. ok is false for blank lines, non-NMEA
// noise and sentence types other than RMC.
func ParseLine(line string) (fix Fix, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "$") {
		return Fix{}, false, nil
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		return Fix{}, false, err
	}
	if sentence.DataType() != nmea.TypeRMC {
		return Fix{}, false, nil
	}
	return FromRMC(sentence.(nmea.RMC)), true, nil
}

// Receiver keeps the most recent fix read from an NMEA stream.
type Receiver struct {
	mu     sync.RWMutex
	latest Fix
	have   bool
}

func NewReceiver() *Receiver { return &Receiver{} }

// Latest returns the last fix, if any.
func (r *Receiver) Latest() (Fix, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest, r.have
}

// Run reads lines from src until it fails or ctx is done. Unparseable
// sentences are skipped; GPS modules emit partial lines on startup.
func (r *Receiver) Run(ctx context.Context, src io.Reader) error {
	reader := bufio.NewReader(src)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := reader.ReadString('\n')
		if line != "" {
			fix, ok, perr := ParseLine(line)
			if perr == nil && ok {
				r.mu.Lock()
				r.latest = fix
				r.have = true
				r.mu.Unlock()
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("gps read: %w", err)
		}
	}
}

// OpenSerial opens the GPS UART 8N1.
func OpenSerial(port string, baud int) (io.ReadWriteCloser, error) {
	opts := serial.OpenOptions{
		PortName:              port,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	p, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("gps serial %s: %w", port, err)
	}
	log.Printf("GPS serial port opened on %s at %d baud", port, baud)
	return p, nil
}
