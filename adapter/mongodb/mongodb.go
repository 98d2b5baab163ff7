// Package mongodb implements adapter.Adapter over go.mongodb.org/mongo-driver/v2, lowering
// query.ConditionGroup through querybuilder.LowerMongoGroup instead of SQL text. Grounded on
// original_source/src/adapter/mongodb.rs (no pre-materialized schema, id<->_id mapping,
// index-on-first-write) and forbearing-gst/database/database.go's driver-open + ping-on-open
// convention, adapted from GORM's Open to mongo.Connect.
package mongodb

import (
	"context"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/forbearing/polydb/adapter"
	"github.com/forbearing/polydb/config"
	"github.com/forbearing/polydb/dberrors"
	"github.com/forbearing/polydb/model"
	"github.com/forbearing/polydb/query"
	"github.com/forbearing/polydb/querybuilder"
	"github.com/forbearing/polydb/value"
)

// Adapter implements adapter.Adapter against one Mongo database. create_table issues no DDL
// (spec §4.E MongoDB note); it only creates the indexes declared in the model metadata.
type Adapter struct {
	client *mongo.Client
	db     *mongo.Database

	// indexesEnsured guards spec §4.E's "indexes declared in model metadata are created on
	// first-write if absent" per collection, the same double-checked-locking shape SQLAdapter's
	// tableCreationLock uses for create_table, so a hot Create path doesn't round-trip
	// CreateIndex on every write once the collection's indexes exist, and a failed attempt
	// is retried on the next write instead of being marked done.
	indexesEnsured cmap.ConcurrentMap[string, *indexEnsureLock]
}

type indexEnsureLock struct {
	mu   sync.Mutex
	done bool
}

// Open dials cfg and returns an *Adapter. ctx bounds the initial connect+ping only.
func Open(ctx context.Context, cfg *config.MongoConnection) (*Adapter, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI()))
	if err != nil {
		return nil, dberrors.NewConnectionError("mongodb connect %s:%d: %v", cfg.Host, cfg.Port, err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, dberrors.NewConnectionError("mongodb ping %s:%d: %v", cfg.Host, cfg.Port, err)
	}
	return &Adapter{
		client:         client,
		db:             client.Database(cfg.Database),
		indexesEnsured: cmap.New[*indexEnsureLock](),
	}, nil
}

func (a *Adapter) coll(table string) *mongo.Collection { return a.db.Collection(table) }

// Create inserts rec, mapping "id" to "_id" (spec §4.D′/§4.E). An absent or empty-string "id"
// lets MongoDB allocate an ObjectID; the allocated id is returned as its 24-hex-digit string.
// Any indexes declared in meta are created first if this is the collection's first write.
func (a *Adapter) Create(ctx context.Context, table string, meta *model.ModelMeta, rec adapter.Record) (value.Value, error) {
	if err := a.ensureIndexes(ctx, table, meta); err != nil {
		return value.Null(), err
	}

	doc := bson.M{}
	for k, v := range rec {
		if k == "id" {
			continue
		}
		bv, err := toBSON(querybuilder.MongoField(k), v)
		if err != nil {
			return value.Null(), err
		}
		doc[k] = bv
	}
	if idv, ok := rec["id"]; ok {
		if s, ok := idv.AsString(); ok && s != "" {
			if oid, ok := querybuilder.ParseObjectID(s); ok {
				doc["_id"] = oid
			} else {
				doc["_id"] = s
			}
		}
	}

	res, err := a.coll(table).InsertOne(ctx, doc)
	if err != nil {
		return value.Null(), dberrors.Wrap(err, "mongodb insert into %q", table)
	}
	if oid, ok := res.InsertedID.(bson.ObjectID); ok {
		return value.String(oid.Hex()), nil
	}
	if s, ok := res.InsertedID.(string); ok {
		return value.String(s), nil
	}
	return value.Null(), nil
}

func (a *Adapter) FindByID(ctx context.Context, table string, meta *model.ModelMeta, id value.Value) (adapter.Record, bool, error) {
	rows, err := a.Find(ctx, table, meta, query.Leaf("id", query.Eq, id), query.Options{Limit: ptrInt64(1)})
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0], true, nil
}

func (a *Adapter) Find(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup, opts query.Options) ([]adapter.Record, error) {
	filter, err := querybuilder.LowerMongoGroup(where)
	if err != nil {
		return nil, err
	}
	findOpts := options.Find()
	if len(opts.Sort) > 0 {
		sortDoc := bson.D{}
		for _, s := range opts.Sort {
			dir := 1
			if s.Order == query.Desc {
				dir = -1
			}
			sortDoc = append(sortDoc, bson.E{Key: querybuilder.MongoField(s.Field), Value: dir})
		}
		findOpts.SetSort(sortDoc)
	}
	if opts.Limit != nil {
		findOpts.SetLimit(*opts.Limit)
	}
	if opts.Skip != nil {
		findOpts.SetSkip(*opts.Skip)
	}

	cur, err := a.coll(table).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, dberrors.Wrap(err, "mongodb find in %q", table)
	}
	defer cur.Close(ctx)

	var out []adapter.Record
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, dberrors.Wrap(err, "mongodb decode")
		}
		out = append(out, fromBSONDoc(raw))
	}
	if err := cur.Err(); err != nil {
		return nil, dberrors.Wrap(err, "mongodb cursor")
	}
	return out, nil
}

func (a *Adapter) Update(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup, set adapter.Record) (int64, error) {
	filter, err := querybuilder.LowerMongoGroup(where)
	if err != nil {
		return 0, err
	}
	setDoc := bson.M{}
	for k, v := range set {
		bv, err := toBSON(querybuilder.MongoField(k), v)
		if err != nil {
			return 0, err
		}
		setDoc[querybuilder.MongoField(k)] = bv
	}
	res, err := a.coll(table).UpdateMany(ctx, filter, bson.M{"$set": setDoc})
	if err != nil {
		return 0, dberrors.Wrap(err, "mongodb update in %q", table)
	}
	return res.ModifiedCount, nil
}

func (a *Adapter) UpdateByID(ctx context.Context, table string, meta *model.ModelMeta, id value.Value, set adapter.Record) (bool, error) {
	n, err := a.Update(ctx, table, meta, query.Leaf("id", query.Eq, id), set)
	return n > 0, err
}

// UpdateWithOperations lowers spec §3(B)'s seven update operators to Mongo update operators:
// Set->$set, Increment/Decrement->$inc (negated), Multiply/Divide/PercentIncrease/
// PercentDecrease->$mul (division and percent changes pre-computed as a multiplier since
// Mongo has no native $div).
func (a *Adapter) UpdateWithOperations(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup, ops []query.UpdateOperation) (int64, error) {
	filter, err := querybuilder.LowerMongoGroup(where)
	if err != nil {
		return 0, err
	}
	setDoc, incDoc, mulDoc := bson.M{}, bson.M{}, bson.M{}
	for _, op := range ops {
		field := querybuilder.MongoField(op.Field)
		f, _ := op.Value.AsFloat()
		if f == 0 {
			if i, ok := op.Value.AsInt(); ok {
				f = float64(i)
			}
		}
		switch op.Op {
		case query.Set:
			bv, err := toBSON(field, op.Value)
			if err != nil {
				return 0, err
			}
			setDoc[field] = bv
		case query.Increment:
			incDoc[field] = f
		case query.Decrement:
			incDoc[field] = -f
		case query.Multiply:
			mulDoc[field] = f
		case query.Divide:
			if f == 0 {
				return 0, dberrors.NewValidationError(op.Field, "Divide by zero")
			}
			mulDoc[field] = 1.0 / f
		case query.PercentIncrease:
			mulDoc[field] = 1.0 + f/100.0
		case query.PercentDecrease:
			mulDoc[field] = 1.0 - f/100.0
		default:
			return 0, dberrors.NewUnsupportedOperator(string(op.Op), "mongodb")
		}
	}
	update := bson.M{}
	if len(setDoc) > 0 {
		update["$set"] = setDoc
	}
	if len(incDoc) > 0 {
		update["$inc"] = incDoc
	}
	if len(mulDoc) > 0 {
		update["$mul"] = mulDoc
	}
	if len(update) == 0 {
		return 0, nil
	}
	res, err := a.coll(table).UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, dberrors.Wrap(err, "mongodb update_with_operations in %q", table)
	}
	return res.ModifiedCount, nil
}

func (a *Adapter) Delete(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup) (int64, error) {
	filter, err := querybuilder.LowerMongoGroup(where)
	if err != nil {
		return 0, err
	}
	res, err := a.coll(table).DeleteMany(ctx, filter)
	if err != nil {
		return 0, dberrors.Wrap(err, "mongodb delete in %q", table)
	}
	return res.DeletedCount, nil
}

func (a *Adapter) DeleteByID(ctx context.Context, table string, meta *model.ModelMeta, id value.Value) (bool, error) {
	n, err := a.Delete(ctx, table, meta, query.Leaf("id", query.Eq, id))
	return n > 0, err
}

func (a *Adapter) Count(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup) (int64, error) {
	filter, err := querybuilder.LowerMongoGroup(where)
	if err != nil {
		return 0, err
	}
	n, err := a.coll(table).CountDocuments(ctx, filter)
	if err != nil {
		return 0, dberrors.Wrap(err, "mongodb count in %q", table)
	}
	return n, nil
}

func (a *Adapter) Exists(ctx context.Context, table string, meta *model.ModelMeta, where query.ConditionGroup) (bool, error) {
	n, err := a.Count(ctx, table, meta, where)
	return n > 0, err
}

// CreateTable is a no-op: Mongo materializes collections lazily on first write (spec §4.E).
// It still creates any indexes declared in meta, matching "indexes ... created on first-write
// if absent".
func (a *Adapter) CreateTable(ctx context.Context, table string, meta *model.ModelMeta) error {
	if meta == nil {
		return nil
	}
	for _, idx := range meta.Indexes {
		if err := a.CreateIndex(ctx, table, idx); err != nil {
			return err
		}
	}
	return nil
}

// ensureIndexes runs meta.Indexes through CreateIndex once per table, the first time anything
// writes to that collection through this adapter. A nil meta or an empty Indexes list is a
// no-op; a failed attempt leaves the lock un-done so the next write retries it.
func (a *Adapter) ensureIndexes(ctx context.Context, table string, meta *model.ModelMeta) error {
	if meta == nil || len(meta.Indexes) == 0 {
		return nil
	}
	lock, _ := a.indexesEnsured.Upsert(table, nil, func(ok bool, existing, _ *indexEnsureLock) *indexEnsureLock {
		if ok && existing != nil {
			return existing
		}
		return &indexEnsureLock{}
	})
	lock.mu.Lock()
	defer lock.mu.Unlock()
	if lock.done {
		return nil
	}
	for _, idx := range meta.Indexes {
		if err := a.CreateIndex(ctx, table, idx); err != nil {
			return err
		}
	}
	lock.done = true
	return nil
}

func (a *Adapter) CreateIndex(ctx context.Context, table string, idx model.IndexDefinition) error {
	keys := bson.D{}
	for _, f := range idx.Fields {
		keys = append(keys, bson.E{Key: querybuilder.MongoField(f), Value: 1})
	}
	opts := options.Index()
	if idx.Unique {
		opts.SetUnique(true)
	}
	if idx.Name != "" {
		opts.SetName(idx.Name)
	}
	_, err := a.coll(table).Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys, Options: opts})
	if err != nil {
		return dberrors.Wrap(err, "mongodb create_index on %q", table)
	}
	return nil
}

func (a *Adapter) TableExists(ctx context.Context, table string) (bool, error) {
	names, err := a.db.ListCollectionNames(ctx, bson.M{"name": table})
	if err != nil {
		return false, dberrors.Wrap(err, "mongodb list collections")
	}
	return len(names) > 0, nil
}

func (a *Adapter) DropTable(ctx context.Context, table string) error {
	if err := a.coll(table).Drop(ctx); err != nil {
		return dberrors.Wrap(err, "mongodb drop collection %q", table)
	}
	return nil
}

func (a *Adapter) ServerVersion(ctx context.Context) (string, error) {
	var result bson.M
	err := a.db.RunCommand(ctx, bson.D{{Key: "buildInfo", Value: 1}}).Decode(&result)
	if err != nil {
		return "", dberrors.Wrap(err, "mongodb buildInfo")
	}
	v, _ := result["version"].(string)
	return v, nil
}

func (a *Adapter) Close() error { return a.client.Disconnect(context.Background()) }

func ptrInt64(v int64) *int64 { return &v }

// fromBSONDoc converts a decoded document back to an adapter.Record, mapping "_id" to "id"
// and materializing an ObjectID as its 24-hex-digit string.
func fromBSONDoc(doc bson.M) adapter.Record {
	rec := adapter.Record{}
	for k, v := range doc {
		field := k
		if k == "_id" {
			field = "id"
		}
		rec[field] = fromBSONValue(v)
	}
	return rec
}

func fromBSONValue(v any) value.Value {
	switch t := v.(type) {
	case nil:
		return value.Null()
	case bool:
		return value.Bool(t)
	case int32:
		return value.Int(int64(t))
	case int64:
		return value.Int(t)
	case float64:
		return value.Float(t)
	case string:
		return value.String(t)
	case bson.ObjectID:
		return value.String(t.Hex())
	case time.Time:
		return value.DateTime(t)
	case []byte:
		return value.Bytes(t)
	case bson.A:
		items := make([]value.Value, len(t))
		for i, e := range t {
			items[i] = fromBSONValue(e)
		}
		return value.Array(items...)
	case bson.M:
		fields := make(map[string]value.Value, len(t))
		for k, e := range t {
			fields[k] = fromBSONValue(e)
		}
		return value.Object(fields)
	default:
		return value.String("")
	}
}

// toBSON converts a value.Value to a native type the mongo driver encodes, reusing the
// id<->ObjectId detection querybuilder already implements for filter construction.
func toBSON(field string, v value.Value) (any, error) {
	switch v.Kind() {
	case value.KindNull:
		return nil, nil
	case value.KindBool:
		b, _ := v.AsBool()
		return b, nil
	case value.KindInt:
		i, _ := v.AsInt()
		return i, nil
	case value.KindFloat:
		f, _ := v.AsFloat()
		return f, nil
	case value.KindString:
		s, _ := v.AsString()
		if field == "_id" {
			if oid, ok := querybuilder.ParseObjectID(s); ok {
				return oid, nil
			}
		}
		return s, nil
	case value.KindBytes:
		b, _ := v.AsBytes()
		return b, nil
	case value.KindUuid:
		u, _ := v.AsUuid()
		return u.String(), nil
	case value.KindDateTime:
		t, _ := v.AsDateTime()
		return t.UTC(), nil
	case value.KindDecimal:
		d, _ := v.AsDecimal()
		return d.String(), nil
	case value.KindArray:
		arr, _ := v.AsArray()
		out := make(bson.A, len(arr))
		for i, e := range arr {
			bv, err := toBSON(field, e)
			if err != nil {
				return nil, err
			}
			out[i] = bv
		}
		return out, nil
	case value.KindObject:
		obj, _ := v.AsObject()
		out := bson.M{}
		for k, e := range obj {
			bv, err := toBSON(k, e)
			if err != nil {
				return nil, err
			}
			out[k] = bv
		}
		return out, nil
	case value.KindJson:
		raw, _ := v.AsJson()
		var m any
		if len(raw) == 0 {
			return nil, nil
		}
		if err := bson.UnmarshalExtJSON(raw, false, &m); err != nil {
			return nil, dberrors.NewSerializationError("json operand: %v", err)
		}
		return m, nil
	default:
		return nil, dberrors.NewSerializationError("unsupported value kind %v", v.Kind())
	}
}

var _ adapter.Adapter = (*Adapter)(nil)
