package nn

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"

	"gonum.org/v1/gonum/mat"
)

type layerState struct {
	Rows, Cols int
	W          []float64
	B          []float64
	Gamma      []float64
	Beta       []float64
	Mean       []float64
	Var        []float64
}

// state is the gob wire form of a network
type state struct {
	Config  Config
	Hidden  []layerState
	Out     layerState
	Trained bool
}

func (d *dense) state() layerState {
	r, c := d.W.Dims()
	return layerState{
		Rows: r,
		Cols: c,
		W:    append([]float64(nil), d.W.RawMatrix().Data...),
		B:    append([]float64(nil), d.B...),
	}
}

func (n *Network) snapshot() *state {
	s := &state{Config: n.cfg, Out: n.out.state(), Trained: n.trained}
	for _, l := range n.layers {
		ls := l.dense.state()
		ls.Gamma = append([]float64(nil), l.bn.Gamma...)
		ls.Beta = append([]float64(nil), l.bn.Beta...)
		ls.Mean = append([]float64(nil), l.bn.Mean...)
		ls.Var = append([]float64(nil), l.bn.Var...)
		s.Hidden = append(s.Hidden, ls)
	}
	return s
}

// restore copies s into the network's existing buffers
func (n *Network) restore(s *state) {
	for i := range n.layers {
		l := &n.layers[i]
		copy(l.dense.W.RawMatrix().Data, s.Hidden[i].W)
		copy(l.dense.B, s.Hidden[i].B)
		copy(l.bn.Gamma, s.Hidden[i].Gamma)
		copy(l.bn.Beta, s.Hidden[i].Beta)
		copy(l.bn.Mean, s.Hidden[i].Mean)
		copy(l.bn.Var, s.Hidden[i].Var)
	}
	copy(n.out.W.RawMatrix().Data, s.Out.W)
	copy(n.out.B, s.Out.B)
}

func (s *state) validate() error {
	if err := s.Config.Validate(); err != nil {
		return err
	}
	if len(s.Hidden) != len(s.Config.Hidden) {
		return fmt.Errorf("%d hidden layers stored, config declares %d", len(s.Hidden), len(s.Config.Hidden))
	}
	in := s.Config.InputDim
	check := func(name string, ls layerState, rows, cols int, norm bool) error {
		if ls.Rows != rows || ls.Cols != cols || len(ls.W) != rows*cols || len(ls.B) != cols {
			return fmt.Errorf("%s: shape %dx%d, want %dx%d", name, ls.Rows, ls.Cols, rows, cols)
		}
		if norm && (len(ls.Gamma) != cols || len(ls.Beta) != cols || len(ls.Mean) != cols || len(ls.Var) != cols) {
			return fmt.Errorf("%s: batch norm parameters do not match width %d", name, cols)
		}
		return nil
	}
	for i, width := range s.Config.Hidden {
		if err := check(fmt.Sprintf("layer %d", i), s.Hidden[i], in, width, true); err != nil {
			return err
		}
		in = width
	}
	return check("output layer", s.Out, in, s.Config.OutputDim, false)
}

func fromState(s *state) (*Network, error) {
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("corrupt network state: %w", err)
	}
	n := &Network{cfg: s.Config, trained: s.Trained}
	for _, ls := range s.Hidden {
		n.layers = append(n.layers, hidden{
			dense: dense{W: mat.NewDense(ls.Rows, ls.Cols, ls.W), B: ls.B},
			bn:    batchNorm{Gamma: ls.Gamma, Beta: ls.Beta, Mean: ls.Mean, Var: ls.Var},
		})
	}
	n.out = dense{W: mat.NewDense(s.Out.Rows, s.Out.Cols, s.Out.W), B: s.Out.B}
	return n, nil
}

// MarshalBinary encodes the network with gob
func (n *Network) MarshalBinary() ([]byte, error) {
	n.mu.RLock()
	s := n.snapshot()
	n.mu.RUnlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, fmt.Errorf("failed to encode network: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary replaces the network with a gob encoded one
func (n *Network) UnmarshalBinary(data []byte) error {
	loaded, err := Load(bytes.NewReader(data))
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cfg = loaded.cfg
	n.layers = loaded.layers
	n.out = loaded.out
	n.trained = loaded.trained
	return nil
}

// Save writes the network to w
func (n *Network) Save(w io.Writer) error {
	data, err := n.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Load reads a network written by Save
func Load(r io.Reader) (*Network, error) {
	var s state
	if err := gob.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode network: %w", err)
	}
	return fromState(&s)
}
