// Command tformer runs an untrained encoder/decoder transformer end to end:
// it encodes a random source sequence, greedily decodes a target against it,
// and prints the attention pattern of the first head. Useful for poking at
// shapes and masks; there is no training here.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tformer/pkg/model"
	"tformer/pkg/model/attention"
	"tformer/pkg/params"
	"tformer/pkg/tensor"
)

type options struct {
	dModel   int
	heads    int
	layers   int
	ffHidden int
	vocab    int
	seqLen   int
	seed     int64
	savePath string
	half     bool
	verbose  bool
}

func main() {
	opts := options{}

	root := &cobra.Command{
		Use:          "tformer",
		Short:        "Run a forward pass through the seq2seq transformer core",
		SilenceUsage: true,
		PreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if opts.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}

	flags := root.Flags()
	flags.IntVar(&opts.dModel, "d-model", 64, "model width")
	flags.IntVar(&opts.heads, "heads", 4, "attention heads")
	flags.IntVar(&opts.layers, "layers", 2, "encoder and decoder layers")
	flags.IntVar(&opts.ffHidden, "ff-hidden", 256, "feed-forward inner width")
	flags.IntVar(&opts.vocab, "vocab", 128, "vocabulary size")
	flags.IntVar(&opts.seqLen, "seq-len", 8, "source sequence length")
	flags.Int64Var(&opts.seed, "seed", 42, "parameter init seed")
	flags.StringVar(&opts.savePath, "save", "", "write parameters to this file after the run")
	flags.BoolVar(&opts.half, "half", false, "save parameters as float16")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg := model.Config{
		VocabSize:  opts.vocab,
		MaxSeqLen:  4 * opts.seqLen,
		DModel:     opts.dModel,
		NumHeads:   opts.heads,
		NumLayers:  opts.layers,
		FFHidden:   opts.ffHidden,
		Dropout:    0.1,
		Eps:        1e-6,
		Activation: model.ReLU,
	}

	store := params.NewStore(opts.seed)
	m, err := model.NewTransformer(cfg, store)
	if err != nil {
		return err
	}
	slog.Info("model ready",
		"d_model", cfg.DModel,
		"heads", cfg.NumHeads,
		"layers", cfg.NumLayers,
		"parameters", store.Len())

	// Arbitrary but deterministic source tokens.
	srcData := make([]float32, opts.seqLen)
	for i := range srcData {
		srcData[i] = float32((i*7 + 3) % opts.vocab)
	}
	src, err := tensor.FromSlice(srcData, 1, opts.seqLen)
	if err != nil {
		return err
	}

	memory, err := m.Encode(src, nil, tensor.Eval)
	if err != nil {
		return fmt.Errorf("encode failed: %w", err)
	}
	slog.Debug("encoded source", "shape", fmt.Sprint(memory.Shape))

	// Greedy decode: start from token 0, feed the argmax back in.
	tgt := []float32{0}
	for step := 0; step < opts.seqLen; step++ {
		tgtTensor, err := tensor.FromSlice(tgt, 1, len(tgt))
		if err != nil {
			return err
		}
		state, err := m.Decode(memory, nil, tgtTensor, tensor.CausalMask(len(tgt)), tensor.Eval)
		if err != nil {
			return fmt.Errorf("decode failed at step %d: %w", step, err)
		}
		logits, err := m.Generate(state)
		if err != nil {
			return err
		}

		next, best := 0, float32(0)
		last := logits.Data[(len(tgt)-1)*opts.vocab:]
		for id := 0; id < opts.vocab; id++ {
			if id == 0 || last[id] > best {
				next, best = id, last[id]
			}
		}
		slog.Debug("greedy step", "step", step, "token", next, "logit", best)
		tgt = append(tgt, float32(next))
	}

	ids := make([]int, len(tgt))
	for i, v := range tgt {
		ids[i] = int(v)
	}
	fmt.Printf("source tokens:  %v\n", srcData)
	fmt.Printf("decoded tokens: %v\n", ids)

	if err := printAttention(cfg, store, src); err != nil {
		return err
	}

	if opts.savePath != "" {
		dt := params.Float32
		if opts.half {
			dt = params.Float16
		}
		f, err := os.Create(opts.savePath)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", opts.savePath, err)
		}
		defer f.Close()
		if err := m.Store.Save(f, dt); err != nil {
			return fmt.Errorf("failed to save parameters: %w", err)
		}
		slog.Info("parameters saved", "path", opts.savePath, "float16", opts.half)
	}
	return nil
}

// printAttention re-embeds the source and shows the first head's weights
// from the first encoder block's self-attention. Rebuilding the layer over
// the same store reuses the registered projections.
func printAttention(cfg model.Config, store *params.Store, src *tensor.Tensor) error {
	embed, err := model.NewEmbedding(store, "src_embed", cfg.VocabSize, cfg.DModel)
	if err != nil {
		return err
	}
	x, err := embed.Forward(src)
	if err != nil {
		return err
	}

	attn, err := attention.NewMultiHeadAttention(store, "encoder.0.self_attn",
		cfg.DModel, cfg.NumHeads, 0)
	if err != nil {
		return err
	}
	_, weights, err := attn.Forward(x, x, x, nil, tensor.Eval)
	if err != nil {
		return err
	}

	seq := src.Shape[1]
	fmt.Println("encoder.0 head 0 attention:")
	for i := 0; i < seq; i++ {
		row := make([]string, seq)
		for j := 0; j < seq; j++ {
			row[j] = fmt.Sprintf("%.3f", weights.At(0, 0, i, j))
		}
		fmt.Printf("  q%-2d %s\n", i, strings.Join(row, " "))
	}
	return nil
}
