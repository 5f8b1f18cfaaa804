// Command buildindex runs the offline pipeline: chunk every .txt document in
// the corpus directory, embed the chunks and persist the index snapshot that
// the askcorpus server loads at startup.
package main

import (
	"context"
	"flag"
	"log"

	"go.uber.org/zap"

	"github.com/liliang-cn/askcorpus/internal/chunker"
	"github.com/liliang-cn/askcorpus/internal/config"
	"github.com/liliang-cn/askcorpus/internal/index"
	"github.com/liliang-cn/askcorpus/internal/provider/openai"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	corpusDir  = flag.String("corpus", "", "Corpus directory (overrides config)")
	outPath    = flag.String("out", "", "Output index path (overrides config)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	corpus := cfg.Corpus.Path
	if *corpusDir != "" {
		corpus = *corpusDir
	}
	out := cfg.Index.Path
	if *outPath != "" {
		out = *outPath
	}

	ch, err := chunker.New(cfg.Chunker.MaxChunkSize, cfg.Chunker.Overlap)
	if err != nil {
		logger.Fatal("Invalid chunker configuration", zap.Error(err))
	}

	embedder := openai.NewEmbedder(openai.Config{
		BaseURL:        cfg.LLM.BaseURL,
		APIKey:         cfg.LLM.APIKey,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		Timeout:        cfg.LLM.Timeout,
	})

	builder := index.NewBuilder(ch, embedder, cfg.Index.BatchSize, cfg.RetryPolicy(), logger)

	logger.Info("Building index",
		zap.String("corpus", corpus),
		zap.String("out", out),
		zap.String("embedding_model", cfg.LLM.EmbeddingModel),
	)

	ix, err := builder.BuildAndSave(context.Background(), corpus, out)
	if err != nil {
		logger.Fatal("Index build failed", zap.Error(err))
	}

	logger.Info("Index build complete",
		zap.Int("chunks", ix.Size()),
		zap.Int("dimension", ix.Dimension()),
		zap.String("path", out),
	)
}
