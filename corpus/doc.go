// Package corpus loads product reviews from delimited text files.
//
// The source must carry a header row naming at least the columns
// product_title, rating, summary and review (see WithColumns to rename
// them). Loading is all-or-nothing: either every row parses or the caller
// gets a *core.SchemaError naming the offending row and no records.
//
//	records, err := corpus.LoadFile("data/amazon_product_review.csv")
//	if err != nil {
//	    return err
//	}
package corpus
