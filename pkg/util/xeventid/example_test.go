package xeventid_test

import (
	"fmt"
	"log"

	"github.com/lidz/tasks/pkg/util/xeventid"
)

func Example() {
	g, err := xeventid.New()
	if err != nil {
		log.Fatal(err)
	}

	a := g.Next()
	b := g.Next()
	fmt.Println(len(a), a < b)

	// Output:
	// 32 true
}

func ExampleEncode() {
	fmt.Println(xeventid.Encode([]byte{0, 0, 1}))
	fmt.Println(xeventid.Encode([]byte{0xFF}))

	// Output:
	// ...0
	// zk
}
