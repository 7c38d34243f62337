package problem

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrUnsupportedConvolution = errors.New("unsupported convolution geometry")

// ConvolutionProblem is the shape half of a convolution identifier such as
// "ConvolutionForward_NCHW_filter:1x1_stride:1x1_dilation:1x1_groups:1".
type ConvolutionProblem struct {
	Operation    string
	TensorFormat string
	Filter       [2]int
	Stride       [2]int
	Dilation     [2]int
	Groups       int
}

// ParseConvolution reads an identifier. Unspecified fields default to unit
// filter, stride and dilation with a single group.
func ParseConvolution(id string) (ConvolutionProblem, error) {
	cp := ConvolutionProblem{
		Filter:   [2]int{1, 1},
		Stride:   [2]int{1, 1},
		Dilation: [2]int{1, 1},
		Groups:   1,
	}

	fields := strings.Split(strings.TrimSpace(id), "_")
	if len(fields) < 2 || fields[0] == "" {
		return cp, fmt.Errorf("parse convolution identifier %q: expected operation and tensor format", id)
	}
	cp.Operation = fields[0]
	cp.TensorFormat = fields[1]

	for _, f := range fields[2:] {
		key, val, ok := strings.Cut(f, ":")
		if !ok {
			return cp, fmt.Errorf("parse convolution identifier %q: field %q has no value", id, f)
		}
		var err error
		switch key {
		case "filter":
			cp.Filter, err = parsePair(val)
		case "stride":
			cp.Stride, err = parsePair(val)
		case "dilation":
			cp.Dilation, err = parsePair(val)
		case "groups":
			cp.Groups, err = strconv.Atoi(val)
		default:
			err = fmt.Errorf("unknown field %q", key)
		}
		if err != nil {
			return cp, fmt.Errorf("parse convolution identifier %q: %w", id, err)
		}
	}
	return cp, nil
}

func parsePair(s string) ([2]int, error) {
	a, b, ok := strings.Cut(s, "x")
	if !ok {
		return [2]int{}, fmt.Errorf("expected HxW, got %q", s)
	}
	h, err := strconv.Atoi(a)
	if err != nil {
		return [2]int{}, err
	}
	w, err := strconv.Atoi(b)
	if err != nil {
		return [2]int{}, err
	}
	return [2]int{h, w}, nil
}

// CheckLowering confirms the convolution lowers onto a plain contraction,
// which the cross-check relies on.
func (cp ConvolutionProblem) CheckLowering() error {
	if cp.Operation != "ConvolutionForward" {
		return fmt.Errorf("%w: operation %s", ErrUnsupportedConvolution, cp.Operation)
	}
	if cp.TensorFormat != "NCHW" && cp.TensorFormat != "NHWC" {
		return fmt.Errorf("%w: tensor format %s", ErrUnsupportedConvolution, cp.TensorFormat)
	}
	if cp.Filter != [2]int{1, 1} || cp.Stride != [2]int{1, 1} || cp.Dilation != [2]int{1, 1} || cp.Groups != 1 {
		return fmt.Errorf("%w: %s", ErrUnsupportedConvolution, cp)
	}
	return nil
}

func (cp ConvolutionProblem) String() string {
	return fmt.Sprintf("%s_%s_filter:%dx%d_stride:%dx%d_dilation:%dx%d_groups:%d",
		cp.Operation, cp.TensorFormat,
		cp.Filter[0], cp.Filter[1],
		cp.Stride[0], cp.Stride[1],
		cp.Dilation[0], cp.Dilation[1],
		cp.Groups)
}
