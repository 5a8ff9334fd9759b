package main

import (
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"strings"

	"github.com/monishSR/vecdb/pkg/vecdb"
)

func main() {
	config := vecdb.DefaultConfig()
	config.Dir = "./vecdb-demo.db"

	db, err := vecdb.Open(config.Dir, config)
	if err != nil {
		log.Fatalf("Failed to open vecdb: %v", err)
	}
	defer db.Close()

	if _, err := db.Execute("CREATE vectors"); err != nil {
		log.Fatalf("Failed to create collection: %v", err)
	}
	col, err := db.Collection("vectors")
	if err != nil {
		log.Fatalf("Failed to open collection: %v", err)
	}

	fmt.Println("Inserting vectors...")
	for i := 0; i < 100; i++ {
		vector := make([]string, 128)
		for j := range vector {
			vector[j] = strconv.FormatFloat(rand.Float64(), 'f', 6, 32)
		}
		cmd := "INSERT " + strings.Join(vector, ",") + ";vector-" + strconv.Itoa(i)
		if _, err := col.Execute(cmd); err != nil {
			log.Printf("Failed to insert vector %d: %v", i, err)
		}
	}

	fmt.Println("\nSearching for similar vectors...")
	query := make([]float32, 128)
	for i := range query {
		query[i] = rand.Float32()
	}

	results, err := col.SearchSimilar(vecdb.Cosine, query, 5)
	if err != nil {
		log.Fatalf("Failed to search: %v", err)
	}

	fmt.Println("\nTop 5 results:")
	for i, result := range results {
		fmt.Printf("%d. ID: %d, Score: %.4f\n", i+1, result.Id, result.Score)
	}
}
