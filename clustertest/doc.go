// Package clustertest runs in-process fake servers for routing tests.
//
// A Cluster is either slot-sharded, with MOVED and ASK redirections and
// READONLY replicas, or standalone with ROLE-discoverable replicas. Every
// node records the commands it receives and accepts a Hook that can
// delay, replace or drop individual replies:
//
//	c, err := clustertest.NewCluster(3, 1)
//	if err != nil {
//		t.Fatal(err)
//	}
//	defer c.Close()
//	c.OwnerOf("foo").SetHook(clustertest.OnCommand("GET", 1,
//		clustertest.ReplyError("TRYAGAIN Multiple keys request during rehashing of slot")))
package clustertest
