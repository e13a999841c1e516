// internal/repository/mongo_store.go
package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/javajoker/od-approval-backend/internal/models"
)

const (
	odRequestsCollection = "od_requests"
	usersCollection      = "users"
)

// odRequestDocument is the stored shape of an OD request. Ids are kept as
// strings so documents stay readable from the mongo shell.
type odRequestDocument struct {
	ID            string   `bson:"_id"`
	StudentID     string   `bson:"student"`
	ClassAdvisor  string   `bson:"classAdvisor"`
	HOD           string   `bson:"hod"`
	Department    string   `bson:"department"`
	Year          string   `bson:"year"`
	NotifyFaculty []string `bson:"notifyFaculty"`

	EventName string     `bson:"eventName"`
	EventDate time.Time  `bson:"eventDate"`
	StartDate time.Time  `bson:"startDate"`
	EndDate   time.Time  `bson:"endDate"`
	TimeType  string     `bson:"timeType"`
	StartTime *time.Time `bson:"startTime,omitempty"`
	EndTime   *time.Time `bson:"endTime,omitempty"`
	Reason    string     `bson:"reason"`
	Brochure  string     `bson:"brochure,omitempty"`

	Status         string `bson:"status"`
	AdvisorComment string `bson:"advisorComment"`
	HODComment     string `bson:"hodComment"`
	Remarks        string `bson:"remarks"`

	ProofDocument   string     `bson:"proofDocument,omitempty"`
	ProofSubmitted  bool       `bson:"proofSubmitted"`
	ProofVerified   bool       `bson:"proofVerified"`
	ProofVerifiedBy string     `bson:"proofVerifiedBy,omitempty"`
	ProofVerifiedAt *time.Time `bson:"proofVerifiedAt,omitempty"`

	ApprovedPDFPath string `bson:"approvedPDFPath,omitempty"`
	ODLetterPath    string `bson:"odLetterPath,omitempty"`

	CreatedAt          time.Time  `bson:"createdAt"`
	UpdatedAt          time.Time  `bson:"updatedAt"`
	LastStatusChangeAt time.Time  `bson:"lastStatusChangeAt"`
	AdvisorApprovedAt  *time.Time `bson:"advisorApprovedAt,omitempty"`
	HODApprovedAt      *time.Time `bson:"hodApprovedAt,omitempty"`
	ForwardedToAdminAt *time.Time `bson:"forwardedToAdminAt,omitempty"`
	ForwardedToHODAt   *time.Time `bson:"forwardedToHodAt,omitempty"`
}

func toODRequestDocument(r *models.ODRequest) odRequestDocument {
	doc := odRequestDocument{
		ID:                 r.ID.String(),
		StudentID:          r.StudentID.String(),
		ClassAdvisor:       r.ClassAdvisor.String(),
		HOD:                r.HOD.String(),
		Department:         r.Department,
		Year:               r.Year,
		NotifyFaculty:      append([]string{}, r.NotifyFaculty...),
		EventName:          r.EventName,
		EventDate:          r.EventDate,
		StartDate:          r.StartDate,
		EndDate:            r.EndDate,
		TimeType:           string(r.TimeType),
		StartTime:          r.StartTime,
		EndTime:            r.EndTime,
		Reason:             r.Reason,
		Brochure:           r.Brochure,
		Status:             string(r.Status),
		AdvisorComment:     r.AdvisorComment,
		HODComment:         r.HODComment,
		Remarks:            r.Remarks,
		ProofDocument:      r.ProofDocument,
		ProofSubmitted:     r.ProofSubmitted,
		ProofVerified:      r.ProofVerified,
		ProofVerifiedAt:    r.ProofVerifiedAt,
		ApprovedPDFPath:    r.ApprovedPDFPath,
		ODLetterPath:       r.ODLetterPath,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
		LastStatusChangeAt: r.LastStatusChangeAt,
		AdvisorApprovedAt:  r.AdvisorApprovedAt,
		HODApprovedAt:      r.HODApprovedAt,
		ForwardedToAdminAt: r.ForwardedToAdminAt,
		ForwardedToHODAt:   r.ForwardedToHODAt,
	}
	if r.ProofVerifiedBy != nil {
		doc.ProofVerifiedBy = r.ProofVerifiedBy.String()
	}
	return doc
}

func (d odRequestDocument) model() models.ODRequest {
	r := models.ODRequest{
		StudentID:          parseID(d.StudentID),
		ClassAdvisor:       parseID(d.ClassAdvisor),
		HOD:                parseID(d.HOD),
		Department:         d.Department,
		Year:               d.Year,
		NotifyFaculty:      pq.StringArray(d.NotifyFaculty),
		EventName:          d.EventName,
		EventDate:          d.EventDate,
		StartDate:          d.StartDate,
		EndDate:            d.EndDate,
		TimeType:           models.TimeType(d.TimeType),
		StartTime:          d.StartTime,
		EndTime:            d.EndTime,
		Reason:             d.Reason,
		Brochure:           d.Brochure,
		Status:             models.ODStatus(d.Status),
		AdvisorComment:     d.AdvisorComment,
		HODComment:         d.HODComment,
		Remarks:            d.Remarks,
		ProofDocument:      d.ProofDocument,
		ProofSubmitted:     d.ProofSubmitted,
		ProofVerified:      d.ProofVerified,
		ProofVerifiedAt:    d.ProofVerifiedAt,
		ApprovedPDFPath:    d.ApprovedPDFPath,
		ODLetterPath:       d.ODLetterPath,
		LastStatusChangeAt: d.LastStatusChangeAt,
		AdvisorApprovedAt:  d.AdvisorApprovedAt,
		HODApprovedAt:      d.HODApprovedAt,
		ForwardedToAdminAt: d.ForwardedToAdminAt,
		ForwardedToHODAt:   d.ForwardedToHODAt,
	}
	r.ID = parseID(d.ID)
	r.CreatedAt = d.CreatedAt
	r.UpdatedAt = d.UpdatedAt
	if d.ProofVerifiedBy != "" {
		id := parseID(d.ProofVerifiedBy)
		r.ProofVerifiedBy = &id
	}
	return r
}

type userDocument struct {
	ID               string    `bson:"_id"`
	Name             string    `bson:"name"`
	Email            string    `bson:"email"`
	PasswordHash     string    `bson:"password"`
	Role             string    `bson:"role"`
	RegisterNo       *string   `bson:"registerNo,omitempty"`
	Department       string    `bson:"department,omitempty"`
	Year             string    `bson:"year,omitempty"`
	FacultyAdvisorID string    `bson:"facultyAdvisor,omitempty"`
	CreatedAt        time.Time `bson:"createdAt"`
	UpdatedAt        time.Time `bson:"updatedAt"`
}

func toUserDocument(u *models.User) userDocument {
	doc := userDocument{
		ID:           u.ID.String(),
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		RegisterNo:   u.RegisterNo,
		Department:   u.Department,
		Year:         u.Year,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	if u.FacultyAdvisorID != nil {
		doc.FacultyAdvisorID = u.FacultyAdvisorID.String()
	}
	return doc
}

func (d userDocument) model() models.User {
	u := models.User{
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Role:         models.Role(d.Role),
		RegisterNo:   d.RegisterNo,
		Department:   d.Department,
		Year:         d.Year,
	}
	u.ID = parseID(d.ID)
	u.CreatedAt = d.CreatedAt
	u.UpdatedAt = d.UpdatedAt
	if d.FacultyAdvisorID != "" {
		id := parseID(d.FacultyAdvisorID)
		u.FacultyAdvisorID = &id
	}
	return u
}

// EnsureMongoIndexes creates the unique and lookup indexes both collections rely on.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(usersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "registerNo", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
		{Keys: bson.D{{Key: "role", Value: 1}, {Key: "department", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}

	_, err = db.Collection(odRequestsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "lastStatusChangeAt", Value: 1}}},
		{Keys: bson.D{{Key: "student", Value: 1}}},
		{Keys: bson.D{{Key: "classAdvisor", Value: 1}}},
		{Keys: bson.D{{Key: "department", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create od request indexes: %w", err)
	}
	return nil
}

type MongoODRequestStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewMongoODRequestStore(db *mongo.Database) *MongoODRequestStore {
	return &MongoODRequestStore{coll: db.Collection(odRequestsCollection), now: time.Now}
}

func (s *MongoODRequestStore) Create(ctx context.Context, req *models.ODRequest) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	now := s.now()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now

	if _, err := s.coll.InsertOne(ctx, toODRequestDocument(req)); err != nil {
		return mapMongoError(err)
	}
	return nil
}

func (s *MongoODRequestStore) GetByID(ctx context.Context, id uuid.UUID) (*models.ODRequest, error) {
	var doc odRequestDocument
	if err := s.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		return nil, mapMongoError(err)
	}
	r := doc.model()
	return &r, nil
}

// Update uses FindOneAndUpdate with the condition in the filter, which the
// server evaluates and applies atomically for a single document.
func (s *MongoODRequestStore) Update(ctx context.Context, id uuid.UUID, cond Condition, patch models.ODRequestPatch) (*models.ODRequest, error) {
	set := mongoSet(patch)
	if len(set) == 0 {
		return s.GetByID(ctx, id)
	}
	set["updatedAt"] = s.now()

	filter := mongoCondition(bson.M{"_id": id.String()}, cond)
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc odRequestDocument
	err := s.coll.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		count, countErr := s.coll.CountDocuments(ctx, bson.M{"_id": id.String()})
		if countErr != nil {
			return nil, fmt.Errorf("check od request existence: %w", countErr)
		}
		if count == 0 {
			return nil, ErrNotFound
		}
		return nil, ErrConditionFailed
	}
	if err != nil {
		return nil, mapMongoError(err)
	}

	r := doc.model()
	return &r, nil
}

func (s *MongoODRequestStore) Find(ctx context.Context, filter ODRequestFilter) ([]models.ODRequest, int64, error) {
	query := bson.M{}
	if filter.StudentID != nil {
		query["student"] = filter.StudentID.String()
	}
	if filter.ClassAdvisor != nil {
		query["classAdvisor"] = filter.ClassAdvisor.String()
	}
	if filter.Department != "" {
		query["department"] = filter.Department
	}
	query = mongoCondition(query, Condition{Statuses: filter.Statuses, ChangedBefore: filter.ChangedBefore})

	total, err := s.coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count od requests: %w", err)
	}

	sortField := "createdAt"
	if filter.SortByStatusChange {
		sortField = "lastStatusChangeAt"
	}
	opts := options.Find().
		SetSort(bson.D{{Key: sortField, Value: -1}}).
		SetSkip(int64(filter.Offset))
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := s.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("find od requests: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []odRequestDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("decode od requests: %w", err)
	}

	requests := make([]models.ODRequest, 0, len(docs))
	for _, doc := range docs {
		requests = append(requests, doc.model())
	}
	return requests, total, nil
}

func mongoCondition(filter bson.M, cond Condition) bson.M {
	if len(cond.Statuses) > 0 {
		statuses := make([]string, 0, len(cond.Statuses))
		for _, st := range cond.Statuses {
			statuses = append(statuses, string(st))
		}
		filter["status"] = bson.M{"$in": statuses}
	}
	if cond.ProofSubmitted != nil {
		filter["proofSubmitted"] = *cond.ProofSubmitted
	}
	if cond.ChangedBefore != nil {
		filter["lastStatusChangeAt"] = bson.M{"$lt": *cond.ChangedBefore}
	}
	return filter
}

func mongoSet(p models.ODRequestPatch) bson.M {
	set := bson.M{}
	if p.Status != nil {
		set["status"] = string(*p.Status)
	}
	if p.AdvisorComment != nil {
		set["advisorComment"] = *p.AdvisorComment
	}
	if p.HODComment != nil {
		set["hodComment"] = *p.HODComment
	}
	if p.Remarks != nil {
		set["remarks"] = *p.Remarks
	}
	if p.NotifyFaculty != nil {
		set["notifyFaculty"] = append([]string{}, (*p.NotifyFaculty)...)
	}
	if p.ProofDocument != nil {
		set["proofDocument"] = *p.ProofDocument
	}
	if p.ProofSubmitted != nil {
		set["proofSubmitted"] = *p.ProofSubmitted
	}
	if p.ProofVerified != nil {
		set["proofVerified"] = *p.ProofVerified
	}
	if p.ProofVerifiedBy != nil {
		set["proofVerifiedBy"] = p.ProofVerifiedBy.String()
	}
	if p.ProofVerifiedAt != nil {
		set["proofVerifiedAt"] = *p.ProofVerifiedAt
	}
	if p.ApprovedPDFPath != nil {
		set["approvedPDFPath"] = *p.ApprovedPDFPath
	}
	if p.ODLetterPath != nil {
		set["odLetterPath"] = *p.ODLetterPath
	}
	if p.LastStatusChangeAt != nil {
		set["lastStatusChangeAt"] = *p.LastStatusChangeAt
	}
	if p.AdvisorApprovedAt != nil {
		set["advisorApprovedAt"] = *p.AdvisorApprovedAt
	}
	if p.HODApprovedAt != nil {
		set["hodApprovedAt"] = *p.HODApprovedAt
	}
	if p.ForwardedToAdminAt != nil {
		set["forwardedToAdminAt"] = *p.ForwardedToAdminAt
	}
	if p.ForwardedToHODAt != nil {
		set["forwardedToHodAt"] = *p.ForwardedToHODAt
	}
	return set
}

type MongoUserStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewMongoUserStore(db *mongo.Database) *MongoUserStore {
	return &MongoUserStore{coll: db.Collection(usersCollection), now: time.Now}
}

func (s *MongoUserStore) Create(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := s.now()
	user.CreatedAt = now
	user.UpdatedAt = now

	if _, err := s.coll.InsertOne(ctx, toUserDocument(user)); err != nil {
		return mapMongoError(err)
	}
	return nil
}

func (s *MongoUserStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.findOne(ctx, bson.M{"_id": id.String()})
}

func (s *MongoUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	pattern := "^" + regexp.QuoteMeta(email) + "$"
	return s.findOne(ctx, bson.M{"email": bson.M{"$regex": pattern, "$options": "i"}})
}

func (s *MongoUserStore) GetByRegisterNo(ctx context.Context, registerNo string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"registerNo": registerNo})
}

func (s *MongoUserStore) FindOne(ctx context.Context, filter UserFilter) (*models.User, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	var doc userDocument
	if err := s.coll.FindOne(ctx, userQueryDoc(filter), opts).Decode(&doc); err != nil {
		return nil, mapMongoError(err)
	}
	u := doc.model()
	return &u, nil
}

func (s *MongoUserStore) Find(ctx context.Context, filter UserFilter) ([]models.User, error) {
	if filter.IDs != nil && len(filter.IDs) == 0 {
		return []models.User{}, nil
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := s.coll.Find(ctx, userQueryDoc(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []userDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	users := make([]models.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, doc.model())
	}
	return users, nil
}

func (s *MongoUserStore) Departments(ctx context.Context) ([]string, error) {
	values, err := s.coll.Distinct(ctx, "department", bson.M{"department": bson.M{"$ne": ""}})
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	departments := make([]string, 0, len(values))
	for _, v := range values {
		if name, ok := v.(string); ok && name != "" {
			departments = append(departments, name)
		}
	}
	sort.Strings(departments)
	return departments, nil
}

func (s *MongoUserStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.coll.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoUserStore) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var doc userDocument
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, mapMongoError(err)
	}
	u := doc.model()
	return &u, nil
}

func userQueryDoc(filter UserFilter) bson.M {
	query := bson.M{}
	if filter.Role != "" {
		query["role"] = string(filter.Role)
	}
	if filter.Department != "" {
		query["department"] = filter.Department
	}
	if len(filter.IDs) > 0 {
		ids := make([]string, 0, len(filter.IDs))
		for _, id := range filter.IDs {
			ids = append(ids, id.String())
		}
		query["_id"] = bson.M{"$in": ids}
	}
	return query
}

func mapMongoError(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func parseID(raw string) uuid.UUID {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil
	}
	return id
}
