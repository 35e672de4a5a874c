package dbadapter

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoDoc is the envelope every collection stores a blob under, keyed by
// the caller-supplied id (a UID, account-id, or mission-journal key as a
// string), matching the _id-keyed document shape of
// original_source/src/database/mongo.rs's DbAccount/DbPlayer records.
type mongoDoc struct {
	ID   string `bson:"_id"`
	Blob []byte `bson:"blob"`
}

// MongoBackend is the production Backend, grounded on
// go.mongodb.org/mongo-driver per SPEC_FULL.md's domain stack.
type MongoBackend struct {
	client *mongo.Client
	db     *mongo.Database
}

// DialMongo connects to uri and selects database dbName.
func DialMongo(ctx context.Context, uri, dbName string) (*MongoBackend, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return &MongoBackend{client: client, db: client.Database(dbName)}, nil
}

func (m *MongoBackend) SaveBlob(ctx context.Context, collection, id string, blob []byte) error {
	doc := mongoDoc{ID: id, Blob: blob}
	opts := options.Replace().SetUpsert(true)
	_, err := m.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": id}, doc, opts)
	return err
}

func (m *MongoBackend) LoadBlob(ctx context.Context, collection, id string) ([]byte, bool, error) {
	var doc mongoDoc
	err := m.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return doc.Blob, true, nil
}

func (m *MongoBackend) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
