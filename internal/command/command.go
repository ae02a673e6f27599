package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"vigil/internal/models"
)

// Kind discriminates the command variants.
type Kind string

const (
	KindStart  Kind = "start"
	KindHelp   Kind = "help"
	KindStatus Kind = "status"
	KindSet    Kind = "set"
	KindClear  Kind = "clear"
	KindList   Kind = "list"
	KindChart  Kind = "chart"
)

// Parse errors
var (
	ErrNotCommand     = errors.New("not a command")
	ErrUnknownCommand = errors.New("unknown command")
	ErrInvalidValue   = errors.New("invalid numeric value")
	ErrBadArguments   = errors.New("wrong arguments")
)

// Command is one parsed subscriber command. Key and Value are only set for
// the variants that carry them.
type Command struct {
	Kind Kind

	// Set, Clear
	Key models.ThresholdKey

	// Set
	Value float64

	// Chart
	Metric string
}

// Parse turns one inbound message into a Command. The text must start with
// a slash; a "@botname" suffix on the command word is ignored.
func Parse(text string) (Command, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return Command{}, ErrNotCommand
	}

	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return Command{}, ErrNotCommand
	}

	name := strings.ToLower(fields[0])
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	args := fields[1:]

	switch Kind(name) {
	case KindStart, KindHelp, KindStatus, KindList:
		if len(args) != 0 {
			return Command{}, fmt.Errorf("%w: /%s takes no arguments", ErrBadArguments, name)
		}
		return Command{Kind: Kind(name)}, nil

	case KindSet:
		if len(args) != 4 {
			return Command{}, fmt.Errorf("%w: usage /set <sensor> <metric> <min|max> <value>", ErrBadArguments)
		}
		key, err := parseKey(args[0], args[1], args[2])
		if err != nil {
			return Command{}, err
		}
		value, err := strconv.ParseFloat(args[3], 64)
		if err != nil {
			return Command{}, fmt.Errorf("%w: %q", ErrInvalidValue, args[3])
		}
		return Command{Kind: KindSet, Key: key, Value: value}, nil

	case KindClear:
		if len(args) != 3 {
			return Command{}, fmt.Errorf("%w: usage /clear <sensor> <metric> <min|max>", ErrBadArguments)
		}
		key, err := parseKey(args[0], args[1], args[2])
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindClear, Key: key}, nil

	case KindChart:
		if len(args) != 1 {
			return Command{}, fmt.Errorf("%w: usage /chart <metric>", ErrBadArguments)
		}
		return Command{Kind: KindChart, Metric: strings.ToLower(args[0])}, nil

	default:
		return Command{}, fmt.Errorf("%w: /%s", ErrUnknownCommand, name)
	}
}

// parseKey validates the sensor/metric/direction triple of a bound.
func parseKey(sensor, metric, direction string) (models.ThresholdKey, error) {
	dir := models.Direction(strings.ToLower(direction))
	if !dir.IsValid() {
		return models.ThresholdKey{}, fmt.Errorf("%w: direction must be min or max, got %q", ErrBadArguments, direction)
	}

	return models.NewThresholdKey(
		strings.ToLower(strings.TrimSpace(sensor)),
		strings.ToLower(strings.TrimSpace(metric)),
		dir,
	), nil
}
