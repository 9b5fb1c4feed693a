package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "retrievolve",
	Short: "Evolutionary optimizer for retrieval strategies",
	Long: `retrievolve searches the space of retrieval-pipeline configurations
(embedding model, retrieval method, query processing, chunking, reranking,
top-K) with a genetic algorithm, scoring each candidate against a labeled
query set on ranking quality, latency, and cost.`,
	Version: "0.1.0",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
